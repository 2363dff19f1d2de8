package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	appIdentity "uzima-portal/internal/application/identity"
	domain "uzima-portal/internal/domain/identity"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdentityRepo 提供身分記錄與 refresh session 的存取。
type IdentityRepo struct {
	db *sql.DB
}

// NewIdentityRepo 建立 IdentityRepo。
func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

const identityColumns = `id, email, COALESCE(role, ''), COALESCE(full_name, ''), COALESCE(phone_number, ''), is_active, password_hash`

func scanIdentity(row *sql.Row) (domain.Identity, error) {
	var ident domain.Identity
	var role string
	err := row.Scan(&ident.ID, &ident.Email, &role, &ident.FullName, &ident.PhoneNumber, &ident.IsActive, &ident.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Identity{}, domain.ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}
	ident.Role = domain.Role(role)
	return ident, nil
}

// FindByID 依識別碼查詢身分。
func (r *IdentityRepo) FindByID(ctx context.Context, id string) (domain.Identity, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1;`, identityColumns)
	return scanIdentity(r.db.QueryRowContext(ctx, q, id))
}

// FindByEmail 依 email 查詢身分，email 已在進入儲存層前正規化。
func (r *IdentityRepo) FindByEmail(ctx context.Context, email string) (domain.Identity, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1;`, identityColumns)
	return scanIdentity(r.db.QueryRowContext(ctx, q, email))
}

// Create 建立尚未指派角色的身分；email 重複時回傳 ErrDuplicateEmail。
func (r *IdentityRepo) Create(ctx context.Context, email, passwordHash string) (string, error) {
	const q = `
INSERT INTO users (email, password_hash)
VALUES ($1, $2)
RETURNING id;
`
	var id string
	if err := r.db.QueryRowContext(ctx, q, email, passwordHash).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", domain.ErrDuplicateEmail
		}
		return "", err
	}
	return id, nil
}

// ProvisionRole 以單一條件式 UPDATE 完成角色指派。WHERE 條件限定
// 角色尚未設定，因此同一身分的併發呼叫最多只有一個寫入生效；
// 回傳值表示本次呼叫是否為實際寫入的那一次。
func (r *IdentityRepo) ProvisionRole(ctx context.Context, id string, role domain.Role, fullName string) (bool, error) {
	const q = `
UPDATE users
SET role = $2,
    full_name = COALESCE(NULLIF($3, ''), full_name),
    is_active = TRUE,
    updated_at = NOW()
WHERE id = $1 AND (role IS NULL OR role = '');
`
	res, err := r.db.ExecContext(ctx, q, id, string(role), fullName)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Patch 部分更新非角色欄位，並回傳更新後的身分。
func (r *IdentityRepo) Patch(ctx context.Context, id string, patch appIdentity.IdentityPatch) (domain.Identity, error) {
	sets := make([]string, 0, 3)
	args := []interface{}{id}
	add := func(col string, val *string) {
		if val == nil {
			return
		}
		args = append(args, *val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("full_name", patch.FullName)
	add("email", patch.Email)
	add("phone_number", patch.PhoneNumber)

	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}

	q := fmt.Sprintf(`
UPDATE users
SET %s, updated_at = NOW()
WHERE id = $1
RETURNING %s;`, strings.Join(sets, ", "), identityColumns)

	ident, err := scanIdentity(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return domain.Identity{}, err
	}
	return ident, nil
}

// SaveSession 儲存 refresh session。
func (r *IdentityRepo) SaveSession(ctx context.Context, sess domain.Session) error {
	const q = `
INSERT INTO auth_sessions (token, user_id, expires_at, user_agent, ip_address, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.db.ExecContext(ctx, q, sess.Token, sess.IdentityID, sess.ExpiresAt, sess.UserAgent, sess.IPAddress, sess.CreatedAt)
	return err
}

// GetSession 依 token 讀取 refresh session。
func (r *IdentityRepo) GetSession(ctx context.Context, token string) (domain.Session, error) {
	const q = `
SELECT token, user_id, expires_at, revoked_at, user_agent, ip_address, created_at
FROM auth_sessions
WHERE token = $1;
`
	var sess domain.Session
	var revoked sql.NullTime
	err := r.db.QueryRowContext(ctx, q, token).Scan(
		&sess.Token, &sess.IdentityID, &sess.ExpiresAt, &revoked, &sess.UserAgent, &sess.IPAddress, &sess.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if revoked.Valid {
		sess.RevokedAt = &revoked.Time
	}
	return sess, nil
}

// RevokeSession 撤銷 refresh session。
func (r *IdentityRepo) RevokeSession(ctx context.Context, token string) error {
	const q = `
UPDATE auth_sessions
SET revoked_at = NOW()
WHERE token = $1 AND revoked_at IS NULL;
`
	_, err := r.db.ExecContext(ctx, q, token)
	return err
}
