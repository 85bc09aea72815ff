package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/skyline/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// Count は登録済み管理者の数を返す。
func (r *PostgresAdminRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// FindByLogin はユーザー名またはメールアドレスで管理者を検索する。見つからない場合はnilを返す。
// ユーザー名は小文字で保存されている前提で比較する。
func (r *PostgresAdminRepo) FindByLogin(ctx context.Context, login string) (*model.Admin, error) {
	return r.findOne(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at
		 FROM admins WHERE username = lower($1) OR (email <> '' AND lower(email) = lower($1))
		 ORDER BY (username = lower($1)) DESC LIMIT 1`,
		login,
	)
}

// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByID(ctx context.Context, id string) (*model.Admin, error) {
	return r.findOne(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at
		 FROM admins WHERE id = $1`,
		id,
	)
}

func (r *PostgresAdminRepo) findOne(ctx context.Context, query string, arg string) (*model.Admin, error) {
	admin := &model.Admin{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&admin.ID, &admin.Username, &admin.Email, &admin.PasswordHash, &admin.CreatedAt, &admin.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	return admin, nil
}

// Create は管理者を作成する。同じユーザー名が既に存在する場合は作成せずfalseを返す。
func (r *PostgresAdminRepo) Create(ctx context.Context, admin *model.Admin) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (id, username, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (username) DO NOTHING`,
		admin.ID, admin.Username, admin.Email, admin.PasswordHash, admin.CreatedAt, admin.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert admin: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresAdminRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE admins SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("admin not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
