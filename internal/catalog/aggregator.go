// Package catalog はクライアントの初期表示に必要なデータを一括で組み立てる。
package catalog

import (
	"context"
	"fmt"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/record"
)

// RecordReader はテーブル単位でレコードを読み出す。record.Storeが実装する。
type RecordReader interface {
	ReadAll(ctx context.Context, table string) ([]record.Record, error)
}

// SiteConfigProvider はサイト設定を返す。未設定の場合はnilを返す。
type SiteConfigProvider interface {
	Get(ctx context.Context) (*model.SiteConfig, error)
}

// PlanLister はAI旅程生成の利用記録を返す。
type PlanLister interface {
	List(ctx context.Context) ([]*model.GeneratedPlan, error)
}

// PublicData は公開サイト用のデータ一式。
// Settingsは認証情報を取り除いたもの。
// Carsは旧クライアントとの互換のために常に空配列を返す。
type PublicData struct {
	Packages     []record.Record   `json:"packages"`
	Destinations []record.Record   `json:"destinations"`
	Services     []record.Record   `json:"services"`
	Testimonials []record.Record   `json:"testimonials"`
	FAQs         []record.Record   `json:"faqs"`
	Posts        []record.Record   `json:"posts"`
	Settings     *model.SiteConfig `json:"settings"`
	Cars         []record.Record   `json:"cars"`
}

// AdminData は管理画面用のデータ一式。
// Settingsは設定画面の編集用で、認証情報を含む。
type AdminData struct {
	Settings       *model.SiteConfig      `json:"settings"`
	Bookings       []record.Record        `json:"bookings"`
	Subscribers    []record.Record        `json:"subscribers"`
	GeneratedPlans []*model.GeneratedPlan `json:"generated_plans"`
}

// Aggregator は複数テーブルの読み出しをまとめる。
type Aggregator struct {
	records  RecordReader
	settings SiteConfigProvider
	plans    PlanLister
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(records RecordReader, settings SiteConfigProvider, plans PlanLister) *Aggregator {
	return &Aggregator{records: records, settings: settings, plans: plans}
}

// GetAllData は公開コンテンツ6テーブルとサイト設定を返す。
// いずれかの読み出しに失敗した場合は部分的な結果を返さずエラーとする。
func (a *Aggregator) GetAllData(ctx context.Context) (*PublicData, error) {
	tables := make(map[string][]record.Record, len(model.PublicTables()))
	for _, table := range model.PublicTables() {
		rows, err := a.records.ReadAll(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("公開データの取得に失敗しました: %w", err)
		}
		tables[table] = nonNil(rows)
	}

	cfg, err := a.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}
	public, err := cfg.Public()
	if err != nil {
		return nil, fmt.Errorf("サイト設定の変換に失敗しました: %w", err)
	}

	return &PublicData{
		Packages:     tables[model.TablePackages],
		Destinations: tables[model.TableDestinations],
		Services:     tables[model.TableServices],
		Testimonials: tables[model.TableTestimonials],
		FAQs:         tables[model.TableFAQs],
		Posts:        tables[model.TablePosts],
		Settings:     public,
		Cars:         []record.Record{},
	}, nil
}

// GetAdminData は予約、購読者、AI旅程生成の利用記録を返す。
func (a *Aggregator) GetAdminData(ctx context.Context) (*AdminData, error) {
	bookings, err := a.records.ReadAll(ctx, model.TableBookings)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	subscribers, err := a.records.ReadAll(ctx, model.TableSubscribers)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	plans, err := a.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("利用記録の取得に失敗しました: %w", err)
	}
	if plans == nil {
		plans = []*model.GeneratedPlan{}
	}
	cfg, err := a.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}

	return &AdminData{
		Settings:       cfg,
		Bookings:       nonNil(bookings),
		Subscribers:    nonNil(subscribers),
		GeneratedPlans: plans,
	}, nil
}

func nonNil(rows []record.Record) []record.Record {
	if rows == nil {
		return []record.Record{}
	}
	return rows
}
