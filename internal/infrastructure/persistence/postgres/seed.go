package postgres

import (
	"context"
	"fmt"

	domain "uzima-portal/internal/domain/identity"
	authinfra "uzima-portal/internal/infrastructure/auth"
)

// SeedDemo 建立示範帳號（admin/physician/patient）。
// 已存在的帳號完全不動，角色一經指派不得被種子資料覆寫。
func (r *IdentityRepo) SeedDemo(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	accounts := []struct {
		email string
		name  string
		role  domain.Role
	}{
		{"admin@uzimacare.test", "Portal Admin", domain.RoleAdmin},
		{"physician@uzimacare.test", "Dr. Demo", domain.RolePhysician},
		{"patient@uzimacare.test", "Demo Patient", domain.RolePatient},
	}

	const q = `
INSERT INTO users (email, password_hash, full_name, role, is_active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (email) DO NOTHING;
`
	for _, a := range accounts {
		hash, err := authinfra.HashPassword("Password123")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, a.email, hash, a.name, string(a.role)); err != nil {
			return fmt.Errorf("seed %s: %w", a.email, err)
		}
	}

	return tx.Commit()
}
