package mail

import (
	"crypto/tls"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/skyline/internal/model"
)

// submissionPort はSTARTTLSで暗号化に切り替えるポート。
const submissionPort = 587

// Factory はサイト設定のSMTP項目からMailerを生成する。
// SMTP設定は管理画面から変更されるため、送信のたびに最新の設定で生成する。
type Factory struct {
	heloName  string
	timeout   time.Duration
	logger    *slog.Logger
	observer  ResultObserver
	tlsConfig *tls.Config
}

// FactoryOption はFactoryの設定を変更する。
type FactoryOption func(*Factory)

// WithResultObserver は送信結果の通知先を設定する。
func WithResultObserver(o ResultObserver) FactoryOption {
	return func(f *Factory) {
		f.observer = o
	}
}

// WithTLSConfig はSTARTTLSで使用するTLS設定を差し替える。
func WithTLSConfig(c *tls.Config) FactoryOption {
	return func(f *Factory) {
		f.tlsConfig = c
	}
}

// NewFactory はFactoryを生成する。
func NewFactory(heloName string, timeout time.Duration, logger *slog.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		heloName: heloName,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForSettings はSMTP設定に対応するMailerを返す。
func (f *Factory) ForSettings(s model.SMTPSettings) *Mailer {
	port := s.PortOrDefault()
	return NewMailer(Config{
		Host:      strings.TrimSpace(s.Server),
		Port:      port,
		StartTLS:  port == submissionPort,
		Username:  s.User,
		Password:  s.Pass,
		HeloName:  f.heloName,
		Timeout:   f.timeout,
		TLSConfig: f.tlsConfig,
	}, f.logger, f.observer)
}

// NotifierFor はSMTP設定に対応するNotifierを返す。
func (f *Factory) NotifierFor(s model.SMTPSettings) Notifier {
	return f.ForSettings(s)
}
