package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSettingsRepo はPostgreSQLを使用した設定リポジトリ。
// settingsテーブルはsetting_keyを主キーとし、値はJSONBで保持する。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get は指定キーの値（JSON）を返す。未設定の場合はnilを返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT setting_value FROM settings WHERE setting_key = $1`,
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// Upsert は指定キーの値を作成または丸ごと置き換える。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (setting_key, setting_value, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (setting_key) DO UPDATE
		 SET setting_value = EXCLUDED.setting_value, updated_at = EXCLUDED.updated_at`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
