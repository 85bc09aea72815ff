// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/skyline/internal/model"
)

// RecordRepository はテーブル定義に従ってレコードを読み書きする汎用リポジトリ。
// テーブル名と列名はmodel.TableSchemaに定義されたものだけを使用する。
// valuesのキーは列名、値はDBにそのまま渡せる形（string, float64, int64, nil等）に変換済みであること。
type RecordRepository interface {
	// Insert はレコードを1件作成する。
	Insert(ctx context.Context, schema model.TableSchema, values map[string]any) error

	// Update は指定IDのレコードのvaluesに含まれる列を更新する。
	// 該当するレコードが存在しない場合はfalseを返す。
	Update(ctx context.Context, schema model.TableSchema, id string, values map[string]any) (bool, error)

	// Delete は指定IDのレコードを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, schema model.TableSchema, id string) error

	// Exists は指定IDのレコードが存在するかを返す。
	Exists(ctx context.Context, schema model.TableSchema, id string) (bool, error)

	// List はテーブルの全レコードをスキーマの並び順で返す。
	// 各行は列名をキーとし、ドライバが返した値をそのまま保持する。
	List(ctx context.Context, schema model.TableSchema) ([]map[string]any, error)
}

// AdminRepository は管理者アカウントの永続化インターフェース。
type AdminRepository interface {
	// Count は登録済み管理者の数を返す。
	Count(ctx context.Context) (int, error)

	// FindByLogin はユーザー名またはメールアドレスで管理者を検索する。見つからない場合はnilを返す。
	FindByLogin(ctx context.Context, login string) (*model.Admin, error)

	// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Admin, error)

	// Create は管理者を作成する。同じユーザー名が既に存在する場合は作成せずfalseを返す。
	Create(ctx context.Context, admin *model.Admin) (bool, error)

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SettingsRepository はキー単位の設定値の永続化インターフェース。
type SettingsRepository interface {
	// Get は指定キーの値（JSON）を返す。未設定の場合はnilを返す。
	Get(ctx context.Context, key string) ([]byte, error)

	// Upsert は指定キーの値を作成または丸ごと置き換える。
	Upsert(ctx context.Context, key string, value []byte) error
}

// SubscriberRepository はニュースレター購読者の永続化インターフェース。
type SubscriberRepository interface {
	// AddIgnoreDuplicate は購読者を登録する。同じメールアドレスが既に存在する場合は何もせずfalseを返す。
	AddIgnoreDuplicate(ctx context.Context, id, email string) (bool, error)
}

// PlanRepository はAI旅程生成の利用記録の永続化インターフェース。
type PlanRepository interface {
	// Create は利用記録を作成する。
	Create(ctx context.Context, plan *model.GeneratedPlan) error

	// CountByEmail は指定メールアドレスの利用回数を返す。
	CountByEmail(ctx context.Context, email string) (int, error)

	// List は全利用記録を新しい順に返す。
	List(ctx context.Context) ([]*model.GeneratedPlan, error)
}
