// Package handler はaction形式のHTTP APIを提供する。
package handler

import (
	"context"
	"encoding/json"
	"io"

	"github.com/hitoshi/skyline/internal/catalog"
	"github.com/hitoshi/skyline/internal/feedimport"
	"github.com/hitoshi/skyline/internal/model"
)

// AuthServiceInterface はハンドラーが必要とする認証サービスのインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, login, password string) (string, error)
	ChangePassword(ctx context.Context, adminID, newPassword string) error
}

// CatalogServiceInterface は公開データと管理データの一括取得のインターフェース。
type CatalogServiceInterface interface {
	GetAllData(ctx context.Context) (*catalog.PublicData, error)
	GetAdminData(ctx context.Context) (*catalog.AdminData, error)
}

// RecordServiceInterface は汎用レコード操作のインターフェース。
type RecordServiceInterface interface {
	Apply(ctx context.Context, table, op, id string, fields map[string]any) (string, error)
}

// BookingServiceInterface は予約受付のインターフェース。
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, payload map[string]any) (string, error)
}

// NewsletterServiceInterface はメールマガジン登録のインターフェース。
type NewsletterServiceInterface interface {
	Subscribe(ctx context.Context, email string) error
}

// PlannerServiceInterface はAIプラン生成の記録と利用回数確認のインターフェース。
type PlannerServiceInterface interface {
	SavePlan(ctx context.Context, email string, request, response json.RawMessage) (string, error)
	CheckUsage(ctx context.Context, email string) (bool, error)
}

// SettingsServiceInterface はサイト設定の更新のインターフェース。
type SettingsServiceInterface interface {
	Update(ctx context.Context, raw []byte) (*model.SiteConfig, error)
}

// UploadServiceInterface はファイルアップロードのインターフェース。
type UploadServiceInterface interface {
	Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error)
	MaxBytes() int64
}

// MailProberInterface はテストメール送信のインターフェース。
type MailProberInterface interface {
	SendTest(ctx context.Context, to string) error
}

// FeedImportServiceInterface は外部フィードからの記事取り込みのインターフェース。
type FeedImportServiceInterface interface {
	Import(ctx context.Context, feedURL string) (*feedimport.Result, error)
}

// HealthChecker はデータベースの疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}
