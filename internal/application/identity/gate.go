package identity

import (
	"context"
	"errors"
	"fmt"

	domain "uzima-portal/internal/domain/identity"
)

// Permission 表示功能權限。
type Permission string

const (
	PermUserManage         Permission = "users:manage"
	PermPortalStats        Permission = "stats:read"
	PermSystemHealth       Permission = "system:health"
	PermRecordsWrite       Permission = "records:write"
	PermRecordsReadOwn     Permission = "records:read_own"
	PermAppointmentsManage Permission = "appointments:manage"
	PermAppointmentsBook   Permission = "appointments:book"
	PermProfileEditOwn     Permission = "profile:edit_own"
)

// CapabilityView 代表角色解析後可抵達的唯一畫面。
// 各 view 互斥，沒有子型別或繼承關係。
type CapabilityView string

const (
	ViewUnauthenticated CapabilityView = "unauthenticated"
	ViewUnprovisioned   CapabilityView = "unprovisioned"
	ViewAdmin           CapabilityView = "admin"
	ViewPhysician       CapabilityView = "physician"
	ViewPatient         CapabilityView = "patient"
	ViewUnknownRole     CapabilityView = "unknown_role"
)

// ResolveCapability 將身分對應到唯一的 capability view。
// nil 代表未登入；角色為空代表尚未完成設定；儲存層出現
// 不在固定集合內的角色時回傳 ViewUnknownRole，絕不退回預設畫面。
func ResolveCapability(ident *domain.Identity) CapabilityView {
	if ident == nil {
		return ViewUnauthenticated
	}
	switch ident.Role {
	case "":
		return ViewUnprovisioned
	case domain.RoleAdmin:
		return ViewAdmin
	case domain.RolePhysician:
		return ViewPhysician
	case domain.RolePatient:
		return ViewPatient
	default:
		return ViewUnknownRole
	}
}

// RolePermissions v1 簡化權限表。
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermUserManage,
		PermPortalStats,
		PermSystemHealth,
		PermProfileEditOwn,
	},
	domain.RolePhysician: {
		PermRecordsWrite,
		PermAppointmentsManage,
		PermProfileEditOwn,
	},
	domain.RolePatient: {
		PermRecordsReadOwn,
		PermAppointmentsBook,
		PermProfileEditOwn,
	},
}

// ViewPermissions 回傳 capability view 可使用的操作集合。
// 未授權的 view 一律回傳空集合。
func ViewPermissions(view CapabilityView) []Permission {
	switch view {
	case ViewAdmin:
		return RolePermissions[domain.RoleAdmin]
	case ViewPhysician:
		return RolePermissions[domain.RolePhysician]
	case ViewPatient:
		return RolePermissions[domain.RolePatient]
	default:
		return nil
	}
}

// AuthorizeInput 定義授權需求。
type AuthorizeInput struct {
	IdentityID string
	Required   []Permission
}

// AuthorizeResult 回傳授權結果。
type AuthorizeResult struct {
	Allowed bool
	View    CapabilityView
	Reason  string
}

// Authorizer 檢查角色/權限。
type Authorizer struct {
	identities IdentityRepository
}

func NewAuthorizer(identities IdentityRepository) *Authorizer {
	return &Authorizer{identities: identities}
}

func (a *Authorizer) HasPermission(role domain.Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Authorize 載入身分並檢查所需權限。未完成角色設定或角色不明
// 都是拒絕，但不是錯誤，呼叫端據此導向對應頁面。
func (a *Authorizer) Authorize(ctx context.Context, input AuthorizeInput) (AuthorizeResult, error) {
	ident, err := a.identities.FindByID(ctx, input.IdentityID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return AuthorizeResult{Allowed: false, View: ViewUnauthenticated, Reason: "identity not found"}, nil
		}
		return AuthorizeResult{}, fmt.Errorf("find identity: %w", err)
	}

	view := ResolveCapability(&ident)
	switch view {
	case ViewUnprovisioned:
		return AuthorizeResult{Allowed: false, View: view, Reason: "role not assigned"}, nil
	case ViewUnknownRole:
		return AuthorizeResult{Allowed: false, View: view, Reason: fmt.Sprintf("unknown role %q", ident.Role)}, nil
	}

	for _, perm := range input.Required {
		if !a.HasPermission(ident.Role, perm) {
			return AuthorizeResult{Allowed: false, View: view, Reason: fmt.Sprintf("missing permission %s", perm)}, nil
		}
	}
	return AuthorizeResult{Allowed: true, View: view}, nil
}
