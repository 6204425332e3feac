package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/dbx"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository stores users in a single SQLite file. Timestamps are kept
// as RFC 3339 text; SQLite serializes writers, so the conditional UPDATE in
// CompareAndSwapToken matches at most once per expected value.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)

	query := `INSERT INTO users (id, email, first_name, last_name, language_code, password_hash, password_salt, access_token, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(), user.Email, user.FirstName, user.LastName, user.LanguageCode,
		user.PasswordHash, user.PasswordSalt, user.AccessToken, ts, ts)
	if err != nil {
		return nil, classifySQLite(err)
	}

	user.CreatedAt, user.UpdatedAt = now, now
	return user, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `select ` + userColumns + ` from users where id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id.String()))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `select ` + userColumns + ` from users where email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user             models.User
		id               string
		created, updated string
	)
	err := row.Scan(&id, &user.Email, &user.FirstName, &user.LastName, &user.LanguageCode,
		&user.PasswordHash, &user.PasswordSalt, &user.AccessToken, &user.PreviousAccessToken,
		&created, &updated)
	if err != nil {
		return nil, classifySQLite(err)
	}

	if user.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("db error: bad user id: %w", err)
	}
	if user.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *SQLiteRepository) GetAccessToken(ctx context.Context, id uuid.UUID) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `select access_token from users where id = ?`, id.String()).Scan(&token)
	if err != nil {
		return "", classifySQLite(err)
	}
	return token, nil
}

func (r *SQLiteRepository) CompareAndSwapToken(ctx context.Context, id uuid.UUID, expected, next string) (int64, error) {
	query := `update users
			set previous_access_token = access_token, access_token = ?, updated_at = ?
			where id = ? and access_token = ?`

	res, err := r.db.ExecContext(ctx, query, next, nowText(), id.String(), expected)
	if err != nil {
		return 0, classifySQLite(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ReplaceAccessToken(ctx context.Context, id uuid.UUID, next string) error {
	query := `update users
			set previous_access_token = access_token, access_token = ?, updated_at = ?
			where id = ?`

	res, err := r.db.ExecContext(ctx, query, next, nowText(), id.String())
	if err != nil {
		return classifySQLite(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// classifySQLite is classify for SQLite result codes: unique constraint
// violations are ErrAlreadyExists, busy and locked databases are
// ErrStoreUnavailable.
func classifySQLite(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch code := sqlErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", common.ErrAlreadyExists, err)
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return unavailable(err)
		}
		return fmt.Errorf("db error: %w", err)
	}

	if isTransient(err) {
		return unavailable(err)
	}

	return fmt.Errorf("db error: %w", err)
}
