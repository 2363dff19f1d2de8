package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "uzima-portal/internal/domain/identity"
)

func TestStore_CreateAndFind(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id, err := s.Create(ctx, "user@example.com", "hash")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ident, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if ident.Email != "user@example.com" || ident.Provisioned() || ident.IsActive {
		t.Errorf("unexpected identity: %+v", ident)
	}

	if _, err := s.Create(ctx, "user@example.com", "hash2"); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}

	if _, err := s.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestStore_ProvisionRoleOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, "user@example.com", "hash")

	applied, err := s.ProvisionRole(ctx, id, domain.RolePatient, "First")
	if err != nil || !applied {
		t.Fatalf("first provision should apply: applied=%t err=%v", applied, err)
	}

	applied, err = s.ProvisionRole(ctx, id, domain.RoleAdmin, "Second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("second provision must not apply")
	}

	ident, _ := s.FindByID(ctx, id)
	if ident.Role != domain.RolePatient || ident.FullName != "First" || !ident.IsActive {
		t.Errorf("first write must win: %+v", ident)
	}
}

// N 個併發請求對同一身分指派角色，恰好一個寫入成功。
func TestStore_ProvisionRoleConcurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, "user@example.com", "hash")

	const n = 32
	roles := []domain.Role{domain.RolePatient, domain.RolePhysician, domain.RoleAdmin}

	var wg sync.WaitGroup
	appliedCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied, err := s.ProvisionRole(ctx, id, roles[i%len(roles)], "Racer")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			appliedCount <- applied
		}(i)
	}
	wg.Wait()
	close(appliedCount)

	wins := 0
	for applied := range appliedCount {
		if applied {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("exactly one provisioning write must succeed, got %d", wins)
	}

	ident, _ := s.FindByID(ctx, id)
	if !ident.Provisioned() || !ident.IsActive {
		t.Errorf("identity should end provisioned and active: %+v", ident)
	}
}

func TestStore_SeedDemo(t *testing.T) {
	s := NewStore()
	s.SeedDemo()

	ident, err := s.FindByEmail(context.Background(), "admin@uzimacare.test")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if ident.Role != domain.RoleAdmin || !ident.IsActive {
		t.Errorf("unexpected seeded admin: %+v", ident)
	}

	// 重複 seed 不得產生第二個帳號或覆寫既有資料。
	s.SeedDemo()
	again, _ := s.FindByEmail(context.Background(), "admin@uzimacare.test")
	if again.ID != ident.ID {
		t.Error("seed must be idempotent")
	}
}

func TestStore_Sessions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	sess := domain.Session{Token: "t-1", IdentityID: "u-1"}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	got, err := s.GetSession(ctx, "t-1")
	if err != nil || got.IdentityID != "u-1" {
		t.Fatalf("GetSession failed: %+v err=%v", got, err)
	}

	if err := s.RevokeSession(ctx, "t-1"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	got, _ = s.GetSession(ctx, "t-1")
	if got.RevokedAt == nil {
		t.Error("session should be revoked")
	}
}
