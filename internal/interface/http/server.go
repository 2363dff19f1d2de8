package httpapi

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	appIdentity "uzima-portal/internal/application/identity"
	"uzima-portal/internal/infra/memory"
	authinfra "uzima-portal/internal/infrastructure/auth"
	"uzima-portal/internal/infrastructure/config"
	"uzima-portal/internal/infrastructure/persistence/postgres"

	"github.com/gin-gonic/gin"
)

const (
	errCodeBadRequest         = "BAD_REQUEST"
	errCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	errCodeUnauthorized       = "AUTH_UNAUTHORIZED"
	errCodeForbidden          = "AUTH_FORBIDDEN"
	errCodeProfileIncomplete  = "AUTH_PROFILE_INCOMPLETE"
	errCodeUnknownRole        = "AUTH_UNKNOWN_ROLE"
	errCodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	errCodePolicyViolation    = "AUTH_POLICY_VIOLATION"
	errCodeNotFound           = "NOT_FOUND"
	errCodeInternal           = "INTERNAL_ERROR"
	refreshCookieName         = "refresh_token"
)

const seedTimeout = 5 * time.Second

// identityCtxKey 放在 request context 的身分識別碼鍵值。
type identityCtxKey struct{}

// contextSession 從 request context 讀取已驗證的身分識別碼，
// 作為注入 use case 的 SessionContext 實作。
type contextSession struct{}

func (contextSession) CurrentIdentityID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(string)
	return id, ok && id != ""
}

// Server 封裝 HTTP 路由與依賴。
type Server struct {
	engine      *gin.Engine
	store       *memory.Store
	db          *sql.DB
	identities  appIdentity.IdentityRepository
	registerUC  *appIdentity.RegisterUseCase
	loginUC     *appIdentity.LoginUseCase
	logoutUC    *appIdentity.LogoutUseCase
	completeUC  *appIdentity.CompleteProfileUseCase
	currentUC   *appIdentity.CurrentUserUseCase
	updateUC    *appIdentity.UpdateUserUseCase
	authz       *appIdentity.Authorizer
	tokenSvc    *authinfra.JWTIssuer
	tokenTTL    time.Duration
	refreshTTL  time.Duration
}

// NewServer 建立 API 伺服器，未提供資料庫時使用記憶體儲存。
func NewServer(cfg config.Config, db *sql.DB) *Server {
	store := memory.NewStore()

	var identities appIdentity.IdentityRepository
	tokenTTL := cfg.Auth.TokenTTL
	if tokenTTL == 0 {
		tokenTTL = 30 * time.Minute
	}
	refreshTTL := cfg.Auth.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = 24 * time.Hour * 30
	}

	var tokenSvc *authinfra.JWTIssuer
	if db != nil {
		repo := postgres.NewIdentityRepo(db)
		identities = repo
		tokenSvc = authinfra.NewJWTIssuer(cfg.Auth.Secret, tokenTTL, refreshTTL, repo, repo)
		if cfg.Seed.Demo {
			ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
			defer cancel()
			if err := repo.SeedDemo(ctx); err != nil {
				log.Printf("警告: 示範帳號建立失敗: %v", err)
			}
		}
	} else {
		identities = store
		tokenSvc = authinfra.NewJWTIssuer(cfg.Auth.Secret, tokenTTL, refreshTTL, store, store)
		if cfg.Seed.Demo {
			store.SeedDemo()
		}
	}

	hasher := authinfra.BcryptHasher{}
	s := &Server{
		engine:     gin.New(),
		store:      store,
		db:         db,
		identities: identities,
		registerUC: appIdentity.NewRegisterUseCase(identities, hasher, tokenSvc),
		loginUC:    appIdentity.NewLoginUseCase(identities, hasher, tokenSvc),
		logoutUC:   appIdentity.NewLogoutUseCase(tokenSvc),
		completeUC: appIdentity.NewCompleteProfileUseCase(contextSession{}, identities),
		currentUC:  appIdentity.NewCurrentUserUseCase(contextSession{}, identities),
		updateUC:   appIdentity.NewUpdateUserUseCase(identities),
		authz:      appIdentity.NewAuthorizer(identities),
		tokenSvc:   tokenSvc,
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
	}
	s.registerRoutes()
	return s
}

// Handler 回傳路由處理器，供 HTTP server 掛載。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store 主要用於測試注入初始資料。
func (s *Server) Store() *memory.Store {
	return s.store
}

func (s *Server) registerRoutes() {
	s.engine.Use(s.ginLogger(), corsMiddleware())

	s.engine.GET("/api/ping", s.handlePing)
	s.engine.GET("/api/health", s.handleHealth)

	authGroup := s.engine.Group("/api/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.POST("/logout", s.handleLogout)
	}

	users := s.engine.Group("/api/users")
	{
		users.GET("/me", s.optionalAuth(), s.handleCurrentUser)
		users.POST("/complete-profile", s.requireAuthenticated(), s.handleCompleteProfile)
		users.PATCH("/:id", s.requireAuthenticated(), s.handleUpdateUser)
	}

	s.engine.GET("/api/dashboard", s.optionalAuth(), s.handleDashboard)

	s.engine.GET("/api/admin/stats", s.requireAuth(appIdentity.PermPortalStats), s.handleAdminStats)
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "pong",
		"timestamp": time.Now().Unix(),
		"status":    "alive",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	dbStatus := "not_configured"
	if s.db != nil {
		dbStatus = "unavailable"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err == nil {
			dbStatus = "ok"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"db":      dbStatus,
	})
}

// handleAdminStats 管理端總覽，僅示意權限閘門的用法。
func (s *Server) handleAdminStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"generated_at": time.Now().Format(time.RFC3339),
		},
	})
}
