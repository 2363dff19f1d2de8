package identity

import (
	"context"
	"errors"
	"fmt"

	domain "uzima-portal/internal/domain/identity"
)

// SessionContext 由外部認證協作者提供目前請求的身分識別碼。
type SessionContext interface {
	CurrentIdentityID(ctx context.Context) (string, bool)
}

// IdentityRepository 存取身分記錄。
type IdentityRepository interface {
	FindByID(ctx context.Context, id string) (domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (domain.Identity, error)
	Create(ctx context.Context, email, passwordHash string) (string, error)
	ProvisionRole(ctx context.Context, id string, role domain.Role, fullName string) (bool, error)
	Patch(ctx context.Context, id string, patch IdentityPatch) (domain.Identity, error)
}

// IdentityPatch 非核心欄位的部分更新，角色不在此列。
type IdentityPatch struct {
	FullName    *string
	Email       *string
	PhoneNumber *string
}

// CompleteProfileUseCase 在註冊後設定角色並啟用帳號。
// Unprovisioned → Provisioned 是唯一的狀態轉移，且只發生一次。
type CompleteProfileUseCase struct {
	sessions   SessionContext
	identities IdentityRepository
}

func NewCompleteProfileUseCase(sessions SessionContext, identities IdentityRepository) *CompleteProfileUseCase {
	return &CompleteProfileUseCase{sessions: sessions, identities: identities}
}

type CompleteProfileInput struct {
	Role     domain.Role
	FullName string
}

// Execute 設定角色。已設定角色時不寫入、直接回傳識別碼，
// 因此用戶端在逾時後重送不會覆寫既有角色。
func (uc *CompleteProfileUseCase) Execute(ctx context.Context, input CompleteProfileInput) (string, error) {
	id, ok := uc.sessions.CurrentIdentityID(ctx)
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	if !input.Role.Known() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRole, input.Role)
	}

	existing, err := uc.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return "", err
		}
		return "", fmt.Errorf("find identity: %w", err)
	}
	if existing.Provisioned() {
		return id, nil
	}

	// 由儲存層以 compare-and-set 保證同一身分的併發請求只有一個寫入成功；
	// 落敗的一方同樣視為冪等成功。
	if _, err := uc.identities.ProvisionRole(ctx, id, input.Role, input.FullName); err != nil {
		return "", fmt.Errorf("provision role: %w", err)
	}
	return id, nil
}

// CurrentUserUseCase 提供顯示層讀取目前使用者；未登入時回傳 false 而非錯誤。
type CurrentUserUseCase struct {
	sessions   SessionContext
	identities IdentityRepository
}

func NewCurrentUserUseCase(sessions SessionContext, identities IdentityRepository) *CurrentUserUseCase {
	return &CurrentUserUseCase{sessions: sessions, identities: identities}
}

func (uc *CurrentUserUseCase) Execute(ctx context.Context) (domain.Identity, bool) {
	id, ok := uc.sessions.CurrentIdentityID(ctx)
	if !ok {
		return domain.Identity{}, false
	}
	ident, err := uc.identities.FindByID(ctx, id)
	if err != nil {
		return domain.Identity{}, false
	}
	return ident, true
}

// UpdateUserUseCase 不受核心規則約束的欄位更新邊界，永遠不碰角色。
type UpdateUserUseCase struct {
	identities IdentityRepository
}

func NewUpdateUserUseCase(identities IdentityRepository) *UpdateUserUseCase {
	return &UpdateUserUseCase{identities: identities}
}

func (uc *UpdateUserUseCase) Execute(ctx context.Context, id string, patch IdentityPatch) (domain.Identity, error) {
	if id == "" {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	ident, err := uc.identities.Patch(ctx, id, patch)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("patch identity: %w", err)
	}
	return ident, nil
}
