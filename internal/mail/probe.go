package mail

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/skyline/internal/model"
)

// テストメールの件名と本文
const (
	probeSubject = "Test Email from Skyline"
	probeBody    = "<h1>It Works!</h1><p>Your SMTP settings are configured correctly.</p>"
)

// SiteConfigProvider はSMTP設定を含むサイト設定を返す。
type SiteConfigProvider interface {
	Get(ctx context.Context) (*model.SiteConfig, error)
}

// Prober は保存済みのSMTP設定でテストメールを送り、設定の誤りを検出する。
type Prober struct {
	settings SiteConfigProvider
	factory  *Factory
	logger   *slog.Logger
}

// NewProber はProberを生成する。
func NewProber(settings SiteConfigProvider, factory *Factory, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{settings: settings, factory: factory, logger: logger}
}

// SendTest はテストメールを送る。宛先が空の場合は管理者アドレスに送る。
// 送信に失敗した場合はSMTPのやり取りをエラーメッセージに含める。
func (p *Prober) SendTest(ctx context.Context, to string) error {
	cfg, err := p.settings.Get(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.SMTP.Configured() {
		return model.NewSMTPNotConfiguredError()
	}

	to = strings.TrimSpace(to)
	if to == "" {
		to = strings.TrimSpace(cfg.AdminEmail)
	}
	if to == "" {
		return model.NewValidationError("送信先のメールアドレスを指定してください")
	}

	result := p.factory.ForSettings(cfg.SMTP).Deliver(ctx, Message{
		To:       to,
		Subject:  probeSubject,
		HTMLBody: probeBody,
		FromName: cfg.DisplayName(),
	})
	if !result.OK {
		p.logger.Warn("test email failed", slog.String("smtp_server", cfg.SMTP.Server))
		return model.NewMailFailedError(strings.Join(result.Log, " | "))
	}

	p.logger.Info("test email sent", slog.String("smtp_server", cfg.SMTP.Server))
	return nil
}
