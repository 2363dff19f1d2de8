package authinfra

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "uzima-portal/internal/domain/identity"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIssuer 實作 TokenIssuer，產生/驗證 JWT access token。
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   domain.SessionStore
	identities IdentityFinder
	now        func() time.Time
}

// IdentityFinder 簡化 repo 需求，僅用於 refresh 時重新載入身分。
type IdentityFinder interface {
	FindByID(ctx context.Context, id string) (domain.Identity, error)
}

// NewJWTIssuer 建立 JWT 簽發器。
func NewJWTIssuer(secret string, accessTTL, refreshTTL time.Duration, sessions domain.SessionStore, identities IdentityFinder) *JWTIssuer {
	return &JWTIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
		identities: identities,
		now:        time.Now,
	}
}

// Claims 定義 access token 的 payload。
type Claims struct {
	IdentityID string `json:"uid"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Issue 產生 access/refresh token 並儲存 session。
func (j *JWTIssuer) Issue(ctx context.Context, ident domain.Identity, meta domain.TokenMeta) (domain.TokenPair, error) {
	return j.issueWithSession(ctx, ident, meta)
}

// Refresh 使用 refresh token 重新簽發 token，並會輪替 session。
func (j *JWTIssuer) Refresh(ctx context.Context, token string) (domain.TokenPair, error) {
	if strings.TrimSpace(token) == "" {
		return domain.TokenPair{}, fmt.Errorf("refresh token required")
	}
	if j.sessions == nil {
		return domain.TokenPair{}, fmt.Errorf("session store not configured")
	}

	sess, err := j.sessions.GetSession(ctx, token)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("get session: %w", err)
	}
	now := j.now()
	if !sess.Active(now) {
		return domain.TokenPair{}, fmt.Errorf("session expired or revoked")
	}
	if err := j.sessions.RevokeSession(ctx, token); err != nil {
		return domain.TokenPair{}, fmt.Errorf("revoke session: %w", err)
	}

	ident, err := j.identities.FindByID(ctx, sess.IdentityID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("find identity: %w", err)
	}
	return j.issueWithSession(ctx, ident, domain.TokenMeta{
		UserAgent: sess.UserAgent,
		IP:        sess.IPAddress,
	})
}

// RevokeRefresh 撤銷 refresh token 對應的 session。
func (j *JWTIssuer) RevokeRefresh(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" || j.sessions == nil {
		return nil
	}
	return j.sessions.RevokeSession(ctx, token)
}

// ParseAccessToken 驗證並解析 access token，回傳身分識別碼與角色。
func (j *JWTIssuer) ParseAccessToken(token string) (Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !tkn.Valid {
		return Claims{}, errors.New("invalid token")
	}
	return claims, nil
}

func (j *JWTIssuer) issueWithSession(ctx context.Context, ident domain.Identity, meta domain.TokenMeta) (domain.TokenPair, error) {
	now := j.now()
	accessExp := now.Add(j.accessTTL)
	refreshExp := now.Add(j.refreshTTL)
	claims := Claims{
		IdentityID: ident.ID,
		Role:       string(ident.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return domain.TokenPair{}, err
	}
	if j.sessions != nil {
		if err := j.sessions.SaveSession(ctx, domain.Session{
			Token:      refreshToken,
			IdentityID: ident.ID,
			ExpiresAt:  refreshExp,
			UserAgent:  meta.UserAgent,
			IPAddress:  meta.IP,
			CreatedAt:  now,
		}); err != nil {
			return domain.TokenPair{}, err
		}
	}

	return domain.TokenPair{
		AccessToken:   signed,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExp,
		RefreshExpiry: refreshExp,
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
