package httpapi

import (
	"errors"
	"net/http"

	appIdentity "uzima-portal/internal/application/identity"
	domain "uzima-portal/internal/domain/identity"

	"github.com/gin-gonic/gin"
)

type completeProfileRequest struct {
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

type updateUserRequest struct {
	FullName    *string `json:"full_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
}

// handleCurrentUser 回傳目前登入的使用者；未登入回 user: null。
func (s *Server) handleCurrentUser(c *gin.Context) {
	ident, ok := s.currentUC.Execute(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": identityJSON(ident)})
}

// handleCompleteProfile 設定角色並啟用帳號。
// 角色字串在邊界先驗證，不認得的值不會進到 use case。
func (s *Server) handleCompleteProfile(c *gin.Context) {
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      "role must be one of patient, physician, admin",
			"error_code": errCodeBadRequest,
		})
		return
	}

	id, err := s.completeUC.Execute(c.Request.Context(), appIdentity.CompleteProfileInput{
		Role:     role,
		FullName: req.FullName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthenticated):
			abortUnauthorized(c)
		case errors.Is(err, domain.ErrUnknownRole):
			badRequest(c, err.Error())
		case errors.Is(err, domain.ErrIdentityNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success":    false,
				"error":      "identity not found",
				"error_code": errCodeNotFound,
			})
		default:
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": id})
}

// handleUpdateUser 更新非核心欄位。僅限本人或具使用者管理權限的帳號。
func (s *Server) handleUpdateUser(c *gin.Context) {
	targetID := c.Param("id")
	currentID, ok := contextSession{}.CurrentIdentityID(c.Request.Context())
	if !ok {
		abortUnauthorized(c)
		return
	}

	if targetID != currentID {
		result, err := s.authz.Authorize(c.Request.Context(), appIdentity.AuthorizeInput{
			IdentityID: currentID,
			Required:   []appIdentity.Permission{appIdentity.PermUserManage},
		})
		if err != nil {
			internalError(c)
			return
		}
		if !result.Allowed {
			c.JSON(http.StatusForbidden, gin.H{
				"success":    false,
				"error":      "cannot modify another user",
				"error_code": errCodeForbidden,
			})
			return
		}
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ident, err := s.updateUC.Execute(c.Request.Context(), targetID, appIdentity.IdentityPatch{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success":    false,
				"error":      "identity not found",
				"error_code": errCodeNotFound,
			})
			return
		}
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": identityJSON(ident)})
}

// handleDashboard 回傳 capability view 與對應可用操作，
// 前端依 view 決定導向哪個儀表板。角色不明時如實回報，不退回預設畫面。
func (s *Server) handleDashboard(c *gin.Context) {
	var view appIdentity.CapabilityView
	ident, ok := s.currentUC.Execute(c.Request.Context())
	if !ok {
		view = appIdentity.ResolveCapability(nil)
	} else {
		view = appIdentity.ResolveCapability(&ident)
	}

	perms := appIdentity.ViewPermissions(view)
	operations := make([]string, 0, len(perms))
	for _, p := range perms {
		operations = append(operations, string(p))
	}

	resp := gin.H{
		"success":    true,
		"view":       string(view),
		"operations": operations,
	}
	switch view {
	case appIdentity.ViewUnauthenticated:
		resp["next"] = "sign_in"
	case appIdentity.ViewUnprovisioned:
		resp["next"] = "complete_profile"
	case appIdentity.ViewUnknownRole:
		resp["error"] = "unknown role: " + string(ident.Role)
	}
	c.JSON(http.StatusOK, resp)
}
