package identity

import (
	"errors"
	"fmt"
)

// Role 定義系統角色，空字串代表尚未指派。
type Role string

const (
	RolePatient   Role = "patient"
	RolePhysician Role = "physician"
	RoleAdmin     Role = "admin"
)

// ParseRole 將外部輸入轉成已知角色，未知值回傳 ErrUnknownRole。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RolePhysician, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Known 檢查角色是否屬於固定集合。
func (r Role) Known() bool {
	switch r {
	case RolePatient, RolePhysician, RoleAdmin:
		return true
	}
	return false
}

// Identity 帳號基本資料，由儲存層擁有，其他元件以 ID 參照。
type Identity struct {
	ID          string
	Email       string
	Role        Role // 空值代表註冊後尚未完成角色設定
	FullName    string
	PhoneNumber string
	IsActive    bool
	Password    string // 雜湊後密碼
}

// Provisioned 檢查是否已完成角色設定。
func (i Identity) Provisioned() bool {
	return i.Role != ""
}

// Validate 基本欄位檢查。
func (i Identity) Validate() error {
	if i.ID == "" {
		return errors.New("id is required")
	}
	if i.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

// 錯誤分類，邊界層以 errors.Is 對應到回應碼。
var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrPolicyViolation  = errors.New("password policy violation")
	ErrInvalidEmail     = errors.New("valid email is required")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrUnknownRole      = errors.New("unknown role")
)
