package identity

import (
	"context"
	"errors"
	"fmt"

	domain "uzima-portal/internal/domain/identity"
)

// PasswordHasher 產生與驗證密碼雜湊。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hashed, plain string) bool
}

// TokenIssuer 簽發/驗證 token。
type TokenIssuer interface {
	Issue(ctx context.Context, ident domain.Identity, meta domain.TokenMeta) (domain.TokenPair, error)
	Refresh(ctx context.Context, token string) (domain.TokenPair, error)
	RevokeRefresh(ctx context.Context, token string) error
}

// ErrInvalidCredentials 登入失敗的統一錯誤，不透露帳號是否存在。
var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterUseCase 驗證憑證並建立尚未指派角色的身分。
// 角色與姓名不在這個階段寫入，由 CompleteProfileUseCase 負責。
type RegisterUseCase struct {
	identities IdentityRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
}

func NewRegisterUseCase(identities IdentityRepository, hasher PasswordHasher, tokens TokenIssuer) *RegisterUseCase {
	return &RegisterUseCase{identities: identities, hasher: hasher, tokens: tokens}
}

type RegisterInput struct {
	Email     string
	Password  string
	UserAgent string
	IP        string
}

type RegisterResult struct {
	Identity domain.Identity
	Token    domain.TokenPair
}

func (uc *RegisterUseCase) Execute(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	var out RegisterResult

	// 密碼與 email 規則先於任何寫入，失敗時儲存層不得有部分變更。
	if err := domain.ValidatePassword(input.Password); err != nil {
		return out, err
	}
	profile, err := domain.NormalizeProfile(input.Email, domain.FlowSignUp)
	if err != nil {
		return out, err
	}

	hash, err := uc.hasher.Hash(input.Password)
	if err != nil {
		return out, fmt.Errorf("hash password: %w", err)
	}

	id, err := uc.identities.Create(ctx, profile.Email, hash)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return out, err
		}
		return out, fmt.Errorf("create identity: %w", err)
	}

	ident, err := uc.identities.FindByID(ctx, id)
	if err != nil {
		return out, fmt.Errorf("find identity: %w", err)
	}

	token, err := uc.tokens.Issue(ctx, ident, domain.TokenMeta{UserAgent: input.UserAgent, IP: input.IP})
	if err != nil {
		return out, fmt.Errorf("issue token: %w", err)
	}

	out.Identity = ident
	out.Token = token
	return out, nil
}

// LoginUseCase 驗證帳密並簽發 token。
type LoginUseCase struct {
	identities IdentityRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
}

func NewLoginUseCase(identities IdentityRepository, hasher PasswordHasher, tokens TokenIssuer) *LoginUseCase {
	return &LoginUseCase{identities: identities, hasher: hasher, tokens: tokens}
}

type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IP        string
}

type LoginResult struct {
	Identity domain.Identity
	Token    domain.TokenPair
}

func (uc *LoginUseCase) Execute(ctx context.Context, input LoginInput) (LoginResult, error) {
	var out LoginResult
	profile, err := domain.NormalizeProfile(input.Email, domain.FlowSignIn)
	if err != nil || input.Password == "" {
		return out, ErrInvalidCredentials
	}

	ident, err := uc.identities.FindByEmail(ctx, profile.Email)
	if err != nil {
		return out, ErrInvalidCredentials
	}
	if !uc.hasher.Compare(ident.Password, input.Password) {
		return out, ErrInvalidCredentials
	}

	// 尚未指派角色的身分允許登入，否則無法抵達角色設定步驟；
	// 能做什麼仍由 capability view 決定。
	token, err := uc.tokens.Issue(ctx, ident, domain.TokenMeta{UserAgent: input.UserAgent, IP: input.IP})
	if err != nil {
		return out, fmt.Errorf("issue token: %w", err)
	}

	out.Identity = ident
	out.Token = token
	return out, nil
}

// LogoutUseCase 處理 refresh token 作廢。
type LogoutUseCase struct {
	tokens TokenIssuer
}

func NewLogoutUseCase(tokens TokenIssuer) *LogoutUseCase {
	return &LogoutUseCase{tokens: tokens}
}

func (uc *LogoutUseCase) Execute(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("refresh token required")
	}
	return uc.tokens.RevokeRefresh(ctx, refreshToken)
}
