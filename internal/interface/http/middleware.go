package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	appIdentity "uzima-portal/internal/application/identity"

	"github.com/gin-gonic/gin"
)

// ginLogger 記錄每個請求的方法、路徑與耗時。
func (s *Server) ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// withIdentity 將已驗證的身分識別碼注入 request context，
// 後續 use case 透過 SessionContext 取得。
func withIdentity(c *gin.Context, id string) {
	ctx := context.WithValue(c.Request.Context(), identityCtxKey{}, id)
	c.Request = c.Request.WithContext(ctx)
}

// optionalAuth 嘗試解析 token，但未登入時不會中斷請求。
// 顯示層查詢目前使用者時採用此模式，未登入回傳 null 而非 401。
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := parseBearer(c); ok {
			if claims, err := s.tokenSvc.ParseAccessToken(token); err == nil {
				withIdentity(c, claims.IdentityID)
			}
		}
		c.Next()
	}
}

// requireAuthenticated 僅要求已登入，不檢查角色權限。
// 角色設定端點必須允許尚未指派角色的身分通過。
func (s *Server) requireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := parseBearer(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		claims, err := s.tokenSvc.ParseAccessToken(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		withIdentity(c, claims.IdentityID)
		c.Next()
	}
}

// requireAuth 要求已登入且具備指定權限。
// 未完成角色設定與角色不明的身分都會被擋下，並附上對應的狀態碼。
func (s *Server) requireAuth(perms ...appIdentity.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := parseBearer(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		claims, err := s.tokenSvc.ParseAccessToken(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		result, err := s.authz.Authorize(c.Request.Context(), appIdentity.AuthorizeInput{
			IdentityID: claims.IdentityID,
			Required:   perms,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success":    false,
				"error":      "authorization check failed",
				"error_code": errCodeInternal,
			})
			return
		}
		if !result.Allowed {
			switch result.View {
			case appIdentity.ViewUnauthenticated:
				abortUnauthorized(c)
			case appIdentity.ViewUnprovisioned:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success":    false,
					"error":      result.Reason,
					"error_code": errCodeProfileIncomplete,
				})
			case appIdentity.ViewUnknownRole:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success":    false,
					"error":      result.Reason,
					"error_code": errCodeUnknownRole,
				})
			default:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success":    false,
					"error":      result.Reason,
					"error_code": errCodeForbidden,
				})
			}
			return
		}

		withIdentity(c, claims.IdentityID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success":    false,
		"error":      "authentication required",
		"error_code": errCodeUnauthorized,
	})
}
