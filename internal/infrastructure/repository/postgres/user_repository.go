package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const userColumns = `id, first_name, last_name, email, phone_number, address, state, pin_code, type,
	email_verified, terms_accepted, password_hash, temp_password_hash, temp_password_used, created_at, updated_at`

// userSortColumns maps the public sort names onto columns.
var userSortColumns = map[string]string{
	"firstName":   "first_name",
	"lastName":    "last_name",
	"email":       "email",
	"phoneNumber": "phone_number",
	"type":        "type",
	"createdAt":   "created_at",
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		user.ID, user.FirstName, user.LastName, user.Email, user.PhoneNumber, user.Address, user.State, user.PinCode,
		string(user.Type), user.EmailVerified, user.TermsAccepted, user.PasswordHash, user.TempPasswordHash,
		user.TempPasswordUsed, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Fail(domain.ErrConflict, "create user", "Email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.scanOne(row, "get user", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.scanOne(row, "get user by email", email)
}

func (r *UserRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE type = $1
ORDER BY created_at ASC
`, string(domain.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// List pages through users. Search matches name, email and phone
// case-insensitively.
func (r *UserRepository) List(ctx context.Context, q domain.UserQuery) ([]domain.User, int, error) {
	field, desc, ok := q.SortField()
	if !ok {
		return nil, 0, domain.Fail(domain.ErrInvalidArgument, "list users", "unsupported sort field: "+q.Sort)
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}

	where := ""
	args := make([]any, 0, 3)
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where = `WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR phone_number ILIKE $1`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`
SELECT %s
FROM users
%s
ORDER BY %s %s, id ASC
LIMIT $%d OFFSET $%d
`, userColumns, where, userSortColumns[field], direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ConsumeTempPassword flips the flag only if it is still unset, so two
// concurrent logins cannot both spend the same temporary password.
func (r *UserRepository) ConsumeTempPassword(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE users
SET temp_password_used = TRUE, updated_at = $2
WHERE id = $1 AND temp_password_used = FALSE
`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume temp password: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume temp password rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *UserRepository) MarkTempPasswordUsed(ctx context.Context, id string) error {
	return r.execOne(ctx, "mark temp password used", id, `
UPDATE users
SET temp_password_used = TRUE, updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.execOne(ctx, "update password", id, `
UPDATE users
SET password_hash = $2, updated_at = $3
WHERE id = $1
`, id, hash, time.Now().UTC())
}

func (r *UserRepository) execOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return notFound(op, "user", id)
	}
	return nil
}

func (r *UserRepository) scanOne(row rowScanner, op, key string) (*domain.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(op, "user", key)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	out := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber, &u.Address, &u.State, &u.PinCode, &role,
		&u.EmailVerified, &u.TermsAccepted, &u.PasswordHash, &u.TempPasswordHash, &u.TempPasswordUsed,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.Type = domain.Role(role)
	return u, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
