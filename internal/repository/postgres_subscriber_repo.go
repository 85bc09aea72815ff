package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// AddIgnoreDuplicate は購読者を登録する。同じメールアドレスが既に存在する場合は何もせずfalseを返す。
func (r *PostgresSubscriberRepo) AddIgnoreDuplicate(ctx context.Context, id, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email) VALUES ($1, $2)
		 ON CONFLICT (email) DO NOTHING`,
		id, email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
