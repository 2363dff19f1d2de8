package httpapi

import (
	"errors"
	"net/http"

	appIdentity "uzima-portal/internal/application/identity"
	domain "uzima-portal/internal/domain/identity"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityJSON 是對外的身分表示，不包含密碼雜湊。
func identityJSON(ident domain.Identity) gin.H {
	return gin.H{
		"id":           ident.ID,
		"email":        ident.Email,
		"role":         string(ident.Role),
		"full_name":    ident.FullName,
		"phone_number": ident.PhoneNumber,
		"is_active":    ident.IsActive,
	}
}

// handleRegister 建立帳號並簽發 token。
// 新帳號不帶角色，前端接著導向角色設定頁。
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.registerUC.Execute(c.Request.Context(), appIdentity.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPolicyViolation), errors.Is(err, domain.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"error":      err.Error(),
				"error_code": errCodePolicyViolation,
			})
		case errors.Is(err, domain.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{
				"success":    false,
				"error":      "email already registered",
				"error_code": errCodeEmailTaken,
			})
		default:
			internalError(c)
		}
		return
	}

	s.setRefreshCookie(c, result.Token.RefreshToken)
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"user":         identityJSON(result.Identity),
		"access_token": result.Token.AccessToken,
		"expires_at":   result.Token.AccessExpiry.Unix(),
	})
}

// handleLogin 驗證帳密。失敗一律回同一個 401，不透露帳號是否存在。
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.loginUC.Execute(c.Request.Context(), appIdentity.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, appIdentity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success":    false,
				"error":      appIdentity.ErrInvalidCredentials.Error(),
				"error_code": errCodeInvalidCredentials,
			})
			return
		}
		internalError(c)
		return
	}

	s.setRefreshCookie(c, result.Token.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"user":         identityJSON(result.Identity),
		"access_token": result.Token.AccessToken,
		"expires_at":   result.Token.AccessExpiry.Unix(),
	})
}

// handleRefresh 用 cookie 中的 refresh token 換新 token 並輪替 session。
func (s *Server) handleRefresh(c *gin.Context) {
	refresh, err := c.Cookie(refreshCookieName)
	if err != nil || refresh == "" {
		abortUnauthorized(c)
		return
	}

	pair, err := s.tokenSvc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		s.clearRefreshCookie(c)
		abortUnauthorized(c)
		return
	}

	s.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"access_token": pair.AccessToken,
		"expires_at":   pair.AccessExpiry.Unix(),
	})
}

// handleLogout 作廢 refresh token；重複登出視為成功。
func (s *Server) handleLogout(c *gin.Context) {
	refresh, err := c.Cookie(refreshCookieName)
	if err == nil && refresh != "" {
		_ = s.logoutUC.Execute(c.Request.Context(), refresh)
	}
	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) setRefreshCookie(c *gin.Context, token string) {
	c.SetCookie(refreshCookieName, token, int(s.refreshTTL.Seconds()), "/api/auth", "", false, true)
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookieName, "", -1, "/api/auth", "", false, true)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success":    false,
		"error":      msg,
		"error_code": errCodeBadRequest,
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"success":    false,
		"error":      "internal error",
		"error_code": errCodeInternal,
	})
}
