// Package settings はサイト設定（シングルトン）の取得と更新を提供する。
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/repository"
)

// Service はサイト設定のサービス層。
// 設定はsettingsテーブルのsite_config行に丸ごと保存し、書き込みは常にupsertになる。
type Service struct {
	repo   repository.SettingsRepository
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SettingsRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Get はサイト設定を返す。一度も保存されていない場合はnilを返す。
func (s *Service) Get(ctx context.Context) (*model.SiteConfig, error) {
	raw, err := s.repo.Get(ctx, model.SiteConfigKey)
	if err != nil {
		return nil, fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	cfg, err := model.DecodeSiteConfig(raw)
	if err != nil {
		// 型付きの項目が読めなくても、保存済みの内容はそのまま返す
		s.logger.Warn("stored site config has unexpected shape", slog.String("error", err.Error()))
		return &model.SiteConfig{Raw: raw}, nil
	}
	return cfg, nil
}

// Update はサイト設定を丸ごと置き換える。
// rawはJSONオブジェクトでなければならない。
func (s *Service) Update(ctx context.Context, raw []byte) (*model.SiteConfig, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, model.NewValidationError("設定はJSONオブジェクトで指定してください")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, model.NewValidationError("設定のJSONが不正です")
	}

	cfg, err := model.DecodeSiteConfig(compact.Bytes())
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	if err := s.repo.Upsert(ctx, model.SiteConfigKey, cfg.Raw); err != nil {
		return nil, fmt.Errorf("サイト設定の保存に失敗しました: %w", err)
	}

	s.logger.Info("site config updated",
		slog.Bool("smtp_configured", cfg.SMTP.Configured()),
		slog.String("storage_provider", cfg.StorageProvider),
	)
	return cfg, nil
}
