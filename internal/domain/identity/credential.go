package identity

import (
	"fmt"
	"strings"
	"unicode"
)

// Flow 區分註冊與登入流程。
type Flow string

const (
	FlowSignUp Flow = "signUp"
	FlowSignIn Flow = "signIn"
)

const minPasswordLength = 8

// ValidatePassword 檢查密碼是否符合長度與組成規則。
// 純函式，任一規則不符即拒絕，訊息以第一個不符的規則為準。
func ValidatePassword(candidate string) error {
	if len(candidate) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicyViolation, minPasswordLength)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: must contain an uppercase letter", ErrPolicyViolation)
	}
	if !hasLower {
		return fmt.Errorf("%w: must contain a lowercase letter", ErrPolicyViolation)
	}
	if !hasDigit {
		return fmt.Errorf("%w: must contain a number", ErrPolicyViolation)
	}
	return nil
}

// Profile 憑證階段唯一允許產出的欄位。
type Profile struct {
	Email string
}

// NormalizeProfile 修剪並小寫 email。不論 flow 為何都只回傳 email，
// 角色與姓名一律延後到 profile 設定階段，避免未驗證的身分宣告進入儲存層。
func NormalizeProfile(rawEmail string, flow Flow) (Profile, error) {
	trimmed := strings.TrimSpace(rawEmail)
	if trimmed == "" {
		return Profile{}, ErrInvalidEmail
	}
	return Profile{Email: strings.ToLower(trimmed)}, nil
}
