package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/dbx"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, first_name, last_name, language_code,
		        password_hash, password_salt, access_token, previous_access_token,
		        created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, first_name, last_name, language_code, password_hash, password_salt, access_token)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.LanguageCode,
		user.PasswordHash, user.PasswordSalt, user.AccessToken).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, classify(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.LanguageCode,
		&user.PasswordHash, &user.PasswordSalt, &user.AccessToken, &user.PreviousAccessToken,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetAccessToken(ctx context.Context, id uuid.UUID) (string, error) {
	query :=
		`SELECT access_token FROM users
		 WHERE id = $1
		 `

	var token string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&token); err != nil {
		return "", classify(err)
	}

	return token, nil
}

// CompareAndSwapToken is a single conditional UPDATE; the row lock taken by
// it serializes concurrent swaps of the same user so at most one matches.
func (r *PostgresRepository) CompareAndSwapToken(ctx context.Context, id uuid.UUID, expected, next string) (int64, error) {
	query :=
		`UPDATE users
		 SET previous_access_token = access_token, access_token = $2, updated_at = now()
		 WHERE id = $1 AND access_token = $3
		 `

	res, err := r.db.ExecContext(ctx, query, id, next, expected)
	if err != nil {
		return 0, classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) ReplaceAccessToken(ctx context.Context, id uuid.UUID, next string) error {
	query :=
		`UPDATE users
		 SET previous_access_token = access_token, access_token = $2, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, next)
	if err != nil {
		return classify(err)
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
