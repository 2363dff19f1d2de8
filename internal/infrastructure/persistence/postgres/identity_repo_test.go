package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	appIdentity "uzima-portal/internal/application/identity"
	domain "uzima-portal/internal/domain/identity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIdentityRepo_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	rows := sqlmock.NewRows([]string{"id", "email", "role", "full_name", "phone_number", "is_active", "password_hash"}).
		AddRow("u-1", "user@example.com", "physician", "Dr. Jane", "", true, "hash")

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("user@example.com").
		WillReturnRows(rows)

	ident, err := repo.FindByEmail(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if ident.ID != "u-1" || ident.Role != domain.RolePhysician {
		t.Errorf("unexpected identity: %+v", ident)
	}
}

func TestIdentityRepo_FindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "full_name", "phone_number", "is_active", "password_hash"}))

	_, err = repo.FindByID(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestIdentityRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("user@example.com", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))

	id, err := repo.Create(context.Background(), "user@example.com", "hash")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "u-1" {
		t.Errorf("unexpected id: %s", id)
	}
}

func TestIdentityRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("user@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	_, err = repo.Create(context.Background(), "user@example.com", "hash")
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestIdentityRepo_ProvisionRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", "physician", "Dr. Jane").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.ProvisionRole(context.Background(), "u-1", domain.RolePhysician, "Dr. Jane")
	if err != nil {
		t.Fatalf("ProvisionRole failed: %v", err)
	}
	if !applied {
		t.Error("expected provisioning write to apply")
	}
}

// 角色已設定時 WHERE 條件不命中，不得有任何寫入。
func TestIdentityRepo_ProvisionRoleAlreadySet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	mock.ExpectExec("UPDATE users").
		WithArgs("u-1", "admin", "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.ProvisionRole(context.Background(), "u-1", domain.RoleAdmin, "")
	if err != nil {
		t.Fatalf("ProvisionRole failed: %v", err)
	}
	if applied {
		t.Error("provisioning must not apply when a role is already set")
	}
}

func TestIdentityRepo_Patch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)

	name := "New Name"
	rows := sqlmock.NewRows([]string{"id", "email", "role", "full_name", "phone_number", "is_active", "password_hash"}).
		AddRow("u-1", "user@example.com", "patient", "New Name", "", true, "hash")

	mock.ExpectQuery("UPDATE users").
		WithArgs("u-1", name).
		WillReturnRows(rows)

	ident, err := repo.Patch(context.Background(), "u-1", appIdentity.IdentityPatch{FullName: &name})
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if ident.FullName != "New Name" || ident.Role != domain.RolePatient {
		t.Errorf("unexpected identity: %+v", ident)
	}
}

func TestIdentityRepo_Sessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewIdentityRepo(db)
	sess := domain.Session{
		Token:      "t-1",
		IdentityID: "u-1",
		ExpiresAt:  time.Now().Add(time.Hour),
		UserAgent:  "UA",
		IPAddress:  "127.0.0.1",
		CreatedAt:  time.Now(),
	}

	mock.ExpectExec("INSERT INTO auth_sessions").
		WithArgs(sess.Token, sess.IdentityID, sess.ExpiresAt, sess.UserAgent, sess.IPAddress, sess.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	rows := sqlmock.NewRows([]string{"token", "user_id", "expires_at", "revoked_at", "user_agent", "ip_address", "created_at"}).
		AddRow("t-1", "u-1", sess.ExpiresAt, nil, "UA", "127.0.0.1", sess.CreatedAt)

	mock.ExpectQuery("SELECT (.+) FROM auth_sessions").
		WithArgs("t-1").
		WillReturnRows(rows)

	got, err := repo.GetSession(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.IdentityID != "u-1" || got.RevokedAt != nil {
		t.Errorf("unexpected session: %+v", got)
	}

	mock.ExpectExec("UPDATE auth_sessions").
		WithArgs("t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RevokeSession(context.Background(), "t-1"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
}
