// Package mail はSMTPによるベストエフォートのメール送信を提供する。
// 送信の失敗は呼び出し元に伝播させず、ログと送信記録(Result.Log)にのみ残す。
package mail

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 既定値
const (
	DefaultTimeout  = 10 * time.Second
	DefaultHeloName = "skyline.local"
	DefaultFromName = "Skyline Tours"
)

// Message は送信する1通のメール。
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	FromName string
}

// Result は1回の送信試行の結果と、SMTPのやり取りの記録。
type Result struct {
	OK  bool
	Log []string
}

// Notifier はメールを送信する。送信できなかった場合はfalseを返す。
type Notifier interface {
	Send(ctx context.Context, msg Message) bool
}

// ResultObserver は送信結果を受け取る。メトリクス収集に使用する。
type ResultObserver interface {
	RecordMailResult(ok bool)
}

// Config はSMTPサーバへの接続設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	HeloName string
	Timeout  time.Duration

	// StartTLS がtrueの場合、EHLOの後にSTARTTLSで暗号化に切り替える。
	StartTLS bool
	// TLSConfig はSTARTTLSで使用する設定。nilの場合はServerNameにHostを使う。
	TLSConfig *tls.Config
}

// Mailer はSMTPコマンドを直接やり取りしてメールを送信する。
type Mailer struct {
	cfg      Config
	logger   *slog.Logger
	observer ResultObserver
	now      func() time.Time
}

// NewMailer はMailerを生成する。
func NewMailer(cfg Config, logger *slog.Logger, observer ResultObserver) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HeloName == "" {
		cfg.HeloName = DefaultHeloName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Configured はSMTPサーバが設定されているかを返す。
func (m *Mailer) Configured() bool {
	return m.cfg.Host != ""
}

// Send はメールを送信し、成功したかを返す。エラーは返さない。
func (m *Mailer) Send(ctx context.Context, msg Message) bool {
	return m.Deliver(ctx, msg).OK
}

// Deliver はメールを送信し、SMTPのやり取りの記録を含む結果を返す。
func (m *Mailer) Deliver(ctx context.Context, msg Message) Result {
	s := &session{mailer: m, to: msg.To}
	err := s.run(ctx, msg)

	result := Result{OK: err == nil, Log: s.log}
	if err != nil {
		m.logger.Warn("mail delivery failed",
			slog.String("to", msg.To),
			slog.String("host", m.cfg.Host),
			slog.String("error", err.Error()),
		)
	} else {
		m.logger.Info("mail delivered", slog.String("to", msg.To), slog.String("host", m.cfg.Host))
	}
	if m.observer != nil {
		m.observer.RecordMailResult(result.OK)
	}
	return result
}

// session は1回の送信試行の状態。
type session struct {
	mailer *Mailer
	to     string
	conn   net.Conn
	text   *textproto.Conn
	log    []string
}

func (s *session) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.log = append(s.log, line)
	s.mailer.logger.Debug("smtp", slog.String("step", line))
}

func (s *session) run(ctx context.Context, msg Message) error {
	cfg := s.mailer.cfg
	if cfg.Host == "" {
		s.logf("No SMTP server configured")
		return fmt.Errorf("smtp server not configured")
	}
	if msg.To == "" || strings.ContainsAny(msg.To, "\r\n<>") {
		s.logf("Invalid recipient")
		return fmt.Errorf("invalid recipient %q", msg.To)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.logf("Socket fail: %v", err)
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	s.conn = conn
	s.text = textproto.NewConn(conn)
	defer func() { s.conn.Close() }()

	if _, err := s.expect("banner", 220); err != nil {
		return err
	}
	if err := s.cmd("EHLO "+cfg.HeloName, 250); err != nil {
		return err
	}

	if cfg.StartTLS {
		if err := s.startTLS(); err != nil {
			return err
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		if err := s.cmd("AUTH LOGIN", 334); err != nil {
			return err
		}
		if err := s.secret("username", cfg.Username, 334); err != nil {
			return err
		}
		if err := s.secret("password", cfg.Password, 235); err != nil {
			return err
		}
	}

	from := s.fromAddress()
	if err := s.cmd("MAIL FROM:<"+from+">", 250); err != nil {
		return err
	}
	if err := s.cmd("RCPT TO:<"+msg.To+">", 250, 251); err != nil {
		return err
	}
	if err := s.cmd("DATA", 354); err != nil {
		return err
	}
	if err := s.writeData(msg, from); err != nil {
		return err
	}
	if _, err := s.expect("message", 250); err != nil {
		return err
	}

	// QUITの応答は送信結果に影響しない
	_ = s.cmd("QUIT", 221)
	return nil
}

func (s *session) startTLS() error {
	if err := s.cmd("STARTTLS", 220); err != nil {
		return err
	}

	tlsConfig := s.mailer.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: s.mailer.cfg.Host}
	}
	tlsConn := tls.Client(s.conn, tlsConfig)
	s.deadline()
	if err := tlsConn.Handshake(); err != nil {
		s.logf("TLS handshake failed: %v", err)
		return fmt.Errorf("tls handshake: %w", err)
	}
	s.logf("TLS established")

	s.conn = tlsConn
	s.text = textproto.NewConn(tlsConn)
	return s.cmd("EHLO "+s.mailer.cfg.HeloName, 250)
}

// cmd はコマンドを送信し、応答コードがacceptのいずれかであることを確認する。
func (s *session) cmd(line string, accept ...int) error {
	return s.send(line, line, accept...)
}

// secret はAUTHの値をbase64で送信する。記録には値を残さない。
func (s *session) secret(label, value string, accept ...int) error {
	return s.send(base64.StdEncoding.EncodeToString([]byte(value)), "AUTH "+label, accept...)
}

func (s *session) send(line, logLabel string, accept ...int) error {
	s.deadline()
	if err := s.text.PrintfLine("%s", line); err != nil {
		s.logf("CMD Error: %s -> %v", logLabel, err)
		return fmt.Errorf("write %s: %w", logLabel, err)
	}
	code, reply, err := s.read()
	if err != nil {
		s.logf("CMD Error: %s -> %v", logLabel, err)
		return fmt.Errorf("read reply to %s: %w", logLabel, err)
	}
	if !accepted(code, accept) {
		s.logf("CMD Error: %s -> %d %s", logLabel, code, reply)
		return fmt.Errorf("unexpected reply to %s: %d %s", logLabel, code, reply)
	}
	s.logf("%s -> %d", logLabel, code)
	return nil
}

// expect はコマンドを送らずに応答を読み、コードを確認する。
func (s *session) expect(label string, accept ...int) (string, error) {
	s.deadline()
	code, reply, err := s.read()
	if err != nil {
		s.logf("Read Error: %s -> %v", label, err)
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	if !accepted(code, accept) {
		s.logf("Send Fail: %s -> %d %s", label, code, reply)
		return "", fmt.Errorf("unexpected %s: %d %s", label, code, reply)
	}
	s.logf("%s -> %d", label, code)
	return reply, nil
}

// read は複数行の応答(250-...)を最終行まで読む。
func (s *session) read() (int, string, error) {
	return s.text.ReadResponse(0)
}

func (s *session) writeData(msg Message, from string) error {
	s.deadline()
	w := s.text.DotWriter()

	fromName := msg.FromName
	if fromName == "" {
		fromName = DefaultFromName
	}

	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("Date: " + s.mailer.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.NewString() + "@" + s.mailer.cfg.HeloName + ">\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("From: " + mime.QEncoding.Encode("utf-8", headerValue(fromName)) + " <" + from + ">\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)

	if _, err := io.WriteString(w, b.String()); err != nil {
		w.Close()
		s.logf("DATA write failed: %v", err)
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		s.logf("DATA write failed: %v", err)
		return fmt.Errorf("finish message: %w", err)
	}
	return nil
}

func (s *session) fromAddress() string {
	if strings.Contains(s.mailer.cfg.Username, "@") {
		return s.mailer.cfg.Username
	}
	return "noreply@" + s.mailer.cfg.HeloName
}

func (s *session) deadline() {
	_ = s.conn.SetDeadline(time.Now().Add(s.mailer.cfg.Timeout))
}

// headerValue はヘッダ値から改行を取り除く。
func headerValue(v string) string {
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}

func accepted(code int, accept []int) bool {
	for _, a := range accept {
		if code == a {
			return true
		}
	}
	return false
}

var _ Notifier = (*Mailer)(nil)
