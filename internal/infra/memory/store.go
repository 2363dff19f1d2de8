package memory

import (
	"context"
	"sync"
	"time"

	appIdentity "uzima-portal/internal/application/identity"
	domain "uzima-portal/internal/domain/identity"
	authinfra "uzima-portal/internal/infrastructure/auth"

	"github.com/google/uuid"
)

// Store 為未設定資料庫時使用的記憶體儲存，提供與 postgres repo
// 相同的介面，包括角色指派的 check-then-set 原子性。
type Store struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity
	byEmail    map[string]string
	sessions   map[string]sessionRecord
}

type sessionRecord struct {
	IdentityID string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
}

// NewStore 建立新的記憶體 Store 實例。
func NewStore() *Store {
	return &Store{
		identities: make(map[string]domain.Identity),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]sessionRecord),
	}
}

// SeedDemo 建立示範帳號供登入測試，已存在時不覆寫。
func (s *Store) SeedDemo() {
	accounts := []struct {
		email string
		name  string
		role  domain.Role
	}{
		{"admin@uzimacare.test", "Portal Admin", domain.RoleAdmin},
		{"physician@uzimacare.test", "Dr. Demo", domain.RolePhysician},
		{"patient@uzimacare.test", "Demo Patient", domain.RolePatient},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		if _, exists := s.byEmail[a.email]; exists {
			continue
		}
		hash, err := authinfra.HashPassword("Password123")
		if err != nil {
			continue
		}
		id := uuid.NewString()
		s.identities[id] = domain.Identity{
			ID:       id,
			Email:    a.email,
			Role:     a.role,
			FullName: a.name,
			IsActive: true,
			Password: hash,
		}
		s.byEmail[a.email] = id
	}
}

// FindByID 依識別碼查詢身分。
func (s *Store) FindByID(_ context.Context, id string) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return ident, nil
}

// FindByEmail 依 email 查詢身分。
func (s *Store) FindByEmail(_ context.Context, email string) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return s.identities[id], nil
}

// Create 建立尚未指派角色的身分；email 重複時回傳 ErrDuplicateEmail。
func (s *Store) Create(_ context.Context, email, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return "", domain.ErrDuplicateEmail
	}
	id := uuid.NewString()
	s.identities[id] = domain.Identity{ID: id, Email: email, Password: passwordHash}
	s.byEmail[email] = id
	return id, nil
}

// ProvisionRole 在同一把鎖內完成「檢查角色未設定、寫入角色」，
// 與 postgres 的條件式 UPDATE 等價；併發呼叫只有一個回傳 true。
func (s *Store) ProvisionRole(_ context.Context, id string, role domain.Role, fullName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return false, domain.ErrIdentityNotFound
	}
	if ident.Provisioned() {
		return false, nil
	}
	ident.Role = role
	if fullName != "" {
		ident.FullName = fullName
	}
	ident.IsActive = true
	s.identities[id] = ident
	return true, nil
}

// Patch 部分更新非角色欄位。
func (s *Store) Patch(_ context.Context, id string, patch appIdentity.IdentityPatch) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	if patch.FullName != nil {
		ident.FullName = *patch.FullName
	}
	if patch.Email != nil {
		delete(s.byEmail, ident.Email)
		ident.Email = *patch.Email
		s.byEmail[ident.Email] = id
	}
	if patch.PhoneNumber != nil {
		ident.PhoneNumber = *patch.PhoneNumber
	}
	s.identities[id] = ident
	return ident, nil
}

// SaveSession 儲存 refresh session。
func (s *Store) SaveSession(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sessionRecord{
		IdentityID: sess.IdentityID,
		ExpiresAt:  sess.ExpiresAt,
		UserAgent:  sess.UserAgent,
		IPAddress:  sess.IPAddress,
		CreatedAt:  sess.CreatedAt,
	}
	return nil
}

// GetSession 依 token 讀取 refresh session。
func (s *Store) GetSession(_ context.Context, token string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[token]
	if !ok {
		return domain.Session{}, domain.ErrIdentityNotFound
	}
	return domain.Session{
		Token:      token,
		IdentityID: rec.IdentityID,
		ExpiresAt:  rec.ExpiresAt,
		RevokedAt:  rec.RevokedAt,
		UserAgent:  rec.UserAgent,
		IPAddress:  rec.IPAddress,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// RevokeSession 撤銷 refresh session。
func (s *Store) RevokeSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[token]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.RevokedAt = &now
	s.sessions[token] = rec
	return nil
}

// SetRole 直接改寫儲存的角色值，僅供測試模擬核心寫入路徑以外
// 匯入的資料（例如未知角色）。
func (s *Store) SetRole(id string, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ident, ok := s.identities[id]; ok {
		ident.Role = role
		s.identities[id] = ident
	}
}
