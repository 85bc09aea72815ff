// Package booking は予約（問い合わせ）の受付とステータス管理を提供する。
package booking

import (
	"context"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/skyline/internal/mail"
	"github.com/hitoshi/skyline/internal/model"
)

// 未入力時の既定値
const (
	DefaultCustomerName = "Guest"
	DefaultServiceType  = "General"
	DefaultTravelers    = 1
	generalEnquiry      = "General Enquiry"
)

// RecordWriter は予約レコードの書き込み先。record.Storeが実装する。
type RecordWriter interface {
	Create(ctx context.Context, table string, fields map[string]any) (string, error)
	Update(ctx context.Context, table string, fields map[string]any) error
}

// SiteConfigProvider は通知先アドレスとSMTP設定を含むサイト設定を返す。
type SiteConfigProvider interface {
	Get(ctx context.Context) (*model.SiteConfig, error)
}

// NotifierFactory はSMTP設定から送信手段を生成する。
type NotifierFactory interface {
	NotifierFor(s model.SMTPSettings) mail.Notifier
}

// TextEscaper は利用者の入力をメール本文に埋め込める形にする。
type TextEscaper interface {
	EscapeText(text string) string
}

// Observer は予約受付の発生を受け取る。メトリクス収集に使用する。
type Observer interface {
	RecordBookingCreated()
}

// Service は予約受付のサービス層。
// 予約の保存を先に行い、その後の通知メールはベストエフォートで送る。
type Service struct {
	records  RecordWriter
	settings SiteConfigProvider
	mailers  NotifierFactory
	escaper  TextEscaper
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	records RecordWriter,
	settings SiteConfigProvider,
	mailers NotifierFactory,
	escaper TextEscaper,
	logger *slog.Logger,
	observer Observer,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records:  records,
		settings: settings,
		mailers:  mailers,
		escaper:  escaper,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Booking は受け付けた予約の内容。通知メールの組み立てに使う。
type Booking struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ServiceType   string
	ItemName      string
	TravelDate    string
	Travelers     int
	TotalPrice    float64
	Notes         string
}

// fields はbookingsテーブルに保存する列を返す。
func (b *Booking) fields(date time.Time) map[string]any {
	return map[string]any{
		"date":          date.UTC().Format(time.RFC3339),
		"customerName":  b.CustomerName,
		"customerEmail": b.CustomerEmail,
		"customerPhone": b.CustomerPhone,
		"serviceType":   b.ServiceType,
		"itemName":      b.ItemName,
		"travelDate":    b.TravelDate,
		"travelers":     b.Travelers,
		"totalPrice":    b.TotalPrice,
		"status":        string(model.BookingStatusNew),
		"notes":         b.Notes,
	}
}

// ParseBooking はフォームから送られた値を予約に変換する。
// 未入力の項目は既定値で補い、ステータスの指定は無視する。
func ParseBooking(payload map[string]any) (*Booking, error) {
	b := &Booking{
		CustomerName:  stringField(payload, "customerName"),
		CustomerEmail: stringField(payload, "customerEmail"),
		CustomerPhone: stringField(payload, "customerPhone"),
		ServiceType:   stringField(payload, "serviceType"),
		ItemName:      stringField(payload, "itemName"),
		TravelDate:    stringField(payload, "travelDate"),
		Travelers:     intField(payload, "travelers", DefaultTravelers),
		TotalPrice:    floatField(payload, "totalPrice"),
		Notes:         stringField(payload, "notes"),
	}

	if b.CustomerName == "" {
		b.CustomerName = DefaultCustomerName
	}
	if b.ServiceType == "" {
		b.ServiceType = DefaultServiceType
	}
	if b.Travelers < 1 {
		b.Travelers = DefaultTravelers
	}
	if b.TotalPrice < 0 {
		b.TotalPrice = 0
	}
	if b.CustomerEmail != "" {
		if _, err := netmail.ParseAddress(b.CustomerEmail); err != nil {
			return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
		}
	}
	return b, nil
}

// CreateBooking は予約を保存し、管理者と顧客に通知メールを送る。
// 保存に失敗した場合はエラーを返す。メールの失敗は記録のみ行う。
func (s *Service) CreateBooking(ctx context.Context, payload map[string]any) (string, error) {
	b, err := ParseBooking(payload)
	if err != nil {
		return "", err
	}

	id, err := s.records.Create(ctx, model.TableBookings, b.fields(s.now()))
	if err != nil {
		return "", fmt.Errorf("予約の保存に失敗しました: %w", err)
	}

	s.logger.Info("booking created",
		slog.String("booking_id", id),
		slog.String("service_type", b.ServiceType),
		slog.Bool("has_email", b.CustomerEmail != ""),
	)
	if s.observer != nil {
		s.observer.RecordBookingCreated()
	}

	s.notify(ctx, id, b)
	return id, nil
}

// UpdateStatus は予約のステータスを変更する。
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError("予約IDが指定されていません")
	}
	if err := CheckStatus(status); err != nil {
		return err
	}

	if err := s.records.Update(ctx, model.TableBookings, map[string]any{"id": id, "status": status}); err != nil {
		return err
	}

	s.logger.Info("booking status updated", slog.String("booking_id", id), slog.String("status", status))
	return nil
}

// CheckStatus はステータスが定義済みの値かを検証する。
func CheckStatus(v any) error {
	s, _ := v.(string)
	if !model.BookingStatus(s).Valid() {
		return model.NewInvalidStatusError(fmt.Sprint(v))
	}
	return nil
}

// notify は管理者への通知と顧客への受付確認を送る。失敗しても処理は続ける。
func (s *Service) notify(ctx context.Context, id string, b *Booking) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("booking notification skipped: settings unavailable",
			slog.String("booking_id", id), slog.String("error", err.Error()))
		return
	}
	if cfg == nil || !cfg.SMTP.Configured() {
		s.logger.Info("booking notification skipped: smtp not configured", slog.String("booking_id", id))
		return
	}

	notifier := s.mailers.NotifierFor(cfg.SMTP)
	siteName := cfg.DisplayName()

	if cfg.AdminEmail != "" {
		ok := notifier.Send(ctx, s.adminMessage(cfg.AdminEmail, siteName, b))
		s.logger.Info("booking admin notification", slog.String("booking_id", id), slog.Bool("sent", ok))
	}

	if b.CustomerEmail != "" {
		ok := notifier.Send(ctx, s.customerMessage(siteName, b))
		s.logger.Info("booking customer confirmation", slog.String("booking_id", id), slog.Bool("sent", ok))
	}
}

func (s *Service) adminMessage(to, siteName string, b *Booking) mail.Message {
	item := b.ItemName
	if item == "" {
		item = generalEnquiry
	}

	var body strings.Builder
	body.WriteString("<h2>New Booking Received</h2>")
	s.writeRow(&body, "Customer", b.CustomerName)
	s.writeRow(&body, "Email", b.CustomerEmail)
	s.writeRow(&body, "Phone", b.CustomerPhone)
	s.writeRow(&body, "Service", b.ServiceType)
	s.writeRow(&body, "Item", b.ItemName)
	s.writeRow(&body, "Travel Date", b.TravelDate)
	s.writeRow(&body, "Travelers", strconv.Itoa(b.Travelers))
	s.writeRow(&body, "Total", strconv.FormatFloat(b.TotalPrice, 'f', -1, 64))
	body.WriteString("<p><strong>Notes:</strong><br>")
	body.WriteString(nl2br(s.escaper.EscapeText(b.Notes)))
	body.WriteString("</p>")

	return mail.Message{
		To:       to,
		Subject:  "New Booking: " + item,
		HTMLBody: body.String(),
		FromName: siteName,
	}
}

func (s *Service) customerMessage(siteName string, b *Booking) mail.Message {
	item := b.ItemName
	if item == "" {
		item = b.ServiceType
	}
	name := s.escaper.EscapeText(siteName)

	body := "Dear " + s.escaper.EscapeText(b.CustomerName) + ",<br><br>" +
		"Thank you for booking with us. We have received your request for <strong>" +
		s.escaper.EscapeText(item) + "</strong> and will get back to you shortly.<br><br>" +
		"Best Regards,<br>" + name

	return mail.Message{
		To:       b.CustomerEmail,
		Subject:  "Booking Received - " + siteName,
		HTMLBody: body,
		FromName: siteName,
	}
}

func (s *Service) writeRow(body *strings.Builder, label, value string) {
	body.WriteString("<p><strong>")
	body.WriteString(label)
	body.WriteString(":</strong> ")
	body.WriteString(s.escaper.EscapeText(value))
	body.WriteString("</p>")
}

func nl2br(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>\n")
}

func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intField(payload map[string]any, key string, def int) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

func floatField(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
