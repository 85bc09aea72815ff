package mail

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"net"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/skyline/internal/model"
)

// fakeSMTPServer はテスト用のSMTPサーバ。1接続だけ受け付ける。
type fakeSMTPServer struct {
	ln        net.Listener
	tlsConfig *tls.Config
	// overrides はコマンド名(EHLO, MAIL等)ごとの応答の差し替え。
	overrides map[string]string

	mu       sync.Mutex
	commands []string
	data     string
	usedTLS  bool
	done     chan struct{}
}

func newFakeSMTPServer(t *testing.T, overrides map[string]string) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln, overrides: overrides, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTPServer) start() {
	go func() {
		defer close(s.done)
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		s.serve(conn)
	}()
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) reply(name, def string) string {
	if r, ok := s.overrides[name]; ok {
		return r
	}
	return def
}

func (s *fakeSMTPServer) serve(conn net.Conn) {
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("%s", s.reply("BANNER", "220 fake.test ESMTP ready"))

	authStep := 0
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		if authStep > 0 {
			if authStep == 1 {
				authStep = 2
				_ = tp.PrintfLine("%s", s.reply("AUTH_USER", "334 UGFzc3dvcmQ6"))
			} else {
				authStep = 0
				_ = tp.PrintfLine("%s", s.reply("AUTH_PASS", "235 2.7.0 Authentication successful"))
			}
			continue
		}

		name := strings.ToUpper(strings.Fields(line + " x")[0])
		switch name {
		case "EHLO":
			_ = tp.PrintfLine("%s", s.reply("EHLO", "250-fake.test\r\n250-AUTH LOGIN\r\n250 STARTTLS"))
		case "STARTTLS":
			_ = tp.PrintfLine("%s", s.reply("STARTTLS", "220 2.0.0 Ready to start TLS"))
			if s.tlsConfig == nil {
				continue
			}
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			s.mu.Lock()
			s.usedTLS = true
			s.mu.Unlock()
			conn = tlsConn
			tp = textproto.NewConn(tlsConn)
		case "AUTH":
			authStep = 1
			_ = tp.PrintfLine("%s", s.reply("AUTH", "334 VXNlcm5hbWU6"))
		case "MAIL":
			_ = tp.PrintfLine("%s", s.reply("MAIL", "250 2.1.0 Ok"))
		case "RCPT":
			_ = tp.PrintfLine("%s", s.reply("RCPT", "250 2.1.5 Ok"))
		case "DATA":
			r := s.reply("DATA", "354 End data with <CR><LF>.<CR><LF>")
			_ = tp.PrintfLine("%s", r)
			if !strings.HasPrefix(r, "354") {
				continue
			}
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(body)
			s.mu.Unlock()
			_ = tp.PrintfLine("%s", s.reply("MESSAGE", "250 2.0.0 Ok: queued"))
		case "QUIT":
			_ = tp.PrintfLine("221 2.0.0 Bye")
			return
		default:
			_ = tp.PrintfLine("502 5.5.2 Command not recognized")
		}
	}
}

func (s *fakeSMTPServer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fake SMTP server did not finish")
	}
}

func (s *fakeSMTPServer) commandNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		names = append(names, strings.ToUpper(strings.Fields(c + " x")[0]))
	}
	return names
}

func testMessage() Message {
	return Message{
		To:       "owner@example.com",
		Subject:  "New Booking: Maasai Mara",
		HTMLBody: "<h2>New Booking Received</h2>\n.leading dot line",
		FromName: "Skyline Savannah Tours",
	}
}

// 正常系: 認証付きで全ステップを完了し、本文が届くこと。
func TestMailer_Deliver_FullExchange(t *testing.T) {
	srv := newFakeSMTPServer(t, nil)
	srv.start()

	m := NewMailer(Config{
		Host:     "127.0.0.1",
		Port:     srv.port(),
		Username: "bookings@example.com",
		Password: "s3cret",
		Timeout:  2 * time.Second,
	}, nil, nil)

	result := m.Deliver(context.Background(), testMessage())
	srv.wait(t)

	if !result.OK {
		t.Fatalf("expected success, log: %v", result.Log)
	}

	got := srv.commandNames()
	if len(got) != 8 {
		t.Fatalf("commands = %v, want 8 commands", got)
	}
	if got[0] != "EHLO" || got[1] != "AUTH" || got[4] != "MAIL" || got[5] != "RCPT" || got[6] != "DATA" || got[7] != "QUIT" {
		t.Errorf("unexpected command order: %v", got)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.commands[2] != base64.StdEncoding.EncodeToString([]byte("bookings@example.com")) {
		t.Errorf("username not base64 encoded: %q", srv.commands[2])
	}
	if srv.commands[4] != "MAIL FROM:<bookings@example.com>" {
		t.Errorf("MAIL FROM = %q", srv.commands[4])
	}
	if srv.commands[5] != "RCPT TO:<owner@example.com>" {
		t.Errorf("RCPT TO = %q", srv.commands[5])
	}
	if !strings.Contains(srv.data, "Subject: New Booking: Maasai Mara") {
		t.Errorf("subject header missing in data: %q", srv.data)
	}
	if !strings.Contains(srv.data, "Content-Type: text/html; charset=utf-8") {
		t.Errorf("content type header missing: %q", srv.data)
	}
	// 先頭のドットはドットスタッフィング後に復元される
	if !strings.Contains(srv.data, "\n.leading dot line") {
		t.Errorf("body not delivered intact: %q", srv.data)
	}

	for _, line := range result.Log {
		if strings.Contains(line, "s3cret") || strings.Contains(line, base64.StdEncoding.EncodeToString([]byte("s3cret"))) {
			t.Errorf("password leaked into transcript: %q", line)
		}
	}
}

// 認証情報が無い場合はAUTHを送らないこと。
func TestMailer_Deliver_WithoutAuth(t *testing.T) {
	srv := newFakeSMTPServer(t, nil)
	srv.start()

	m := NewMailer(Config{Host: "127.0.0.1", Port: srv.port(), Timeout: 2 * time.Second}, nil, nil)
	if !m.Send(context.Background(), testMessage()) {
		t.Fatal("expected success")
	}
	srv.wait(t)

	for _, name := range srv.commandNames() {
		if name == "AUTH" {
			t.Error("AUTH should not be sent without credentials")
		}
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.commands[1] != "MAIL FROM:<noreply@"+DefaultHeloName+">" {
		t.Errorf("MAIL FROM = %q", srv.commands[1])
	}
}

// 想定外の応答コードで送信を中断し、falseを返すこと。
func TestMailer_Deliver_FailsOnUnexpectedCode(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
	}{
		{"banner rejected", map[string]string{"BANNER": "554 no service"}},
		{"ehlo rejected", map[string]string{"EHLO": "500 syntax error"}},
		{"auth rejected", map[string]string{"AUTH_PASS": "535 5.7.8 bad credentials"}},
		{"recipient rejected", map[string]string{"RCPT": "550 5.1.1 no such user"}},
		{"data rejected", map[string]string{"DATA": "451 try again later"}},
		{"message rejected", map[string]string{"MESSAGE": "554 5.7.1 rejected"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeSMTPServer(t, tt.overrides)
			srv.start()

			m := NewMailer(Config{
				Host:     "127.0.0.1",
				Port:     srv.port(),
				Username: "user@example.com",
				Password: "pw",
				Timeout:  2 * time.Second,
			}, nil, nil)

			result := m.Deliver(context.Background(), testMessage())
			srv.wait(t)

			if result.OK {
				t.Fatal("expected failure")
			}
			if len(result.Log) == 0 {
				t.Fatal("expected transcript to describe the failure")
			}
			last := result.Log[len(result.Log)-1]
			if !strings.Contains(last, "Error") && !strings.Contains(last, "Fail") {
				t.Errorf("last log line does not describe failure: %q", last)
			}
			// QUITは正常終了時のみ送る
			for _, name := range srv.commandNames() {
				if name == "QUIT" {
					t.Errorf("QUIT sent after failure")
				}
			}
		})
	}
}

func TestMailer_Deliver_NotConfigured(t *testing.T) {
	m := NewMailer(Config{}, nil, nil)
	if m.Configured() {
		t.Error("expected not configured")
	}

	result := m.Deliver(context.Background(), testMessage())
	if result.OK {
		t.Fatal("expected failure when host is empty")
	}
	if len(result.Log) != 1 || result.Log[0] != "No SMTP server configured" {
		t.Errorf("log = %v", result.Log)
	}
}

func TestMailer_Deliver_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewMailer(Config{Host: "127.0.0.1", Port: port, Timeout: time.Second}, nil, nil)
	result := m.Deliver(context.Background(), testMessage())
	if result.OK {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(result.Log[0], "Socket fail") {
		t.Errorf("log = %v", result.Log)
	}
}

// 複数行の応答を最終行まで読み、次のコマンドの応答とずれないこと。
func TestMailer_Deliver_MultilineReplies(t *testing.T) {
	srv := newFakeSMTPServer(t, map[string]string{
		"BANNER": "220-fake.test first line\r\n220-second line\r\n220 ready",
		"MAIL":   "250-Sender\r\n250 ok",
	})
	srv.start()

	m := NewMailer(Config{Host: "127.0.0.1", Port: srv.port(), Timeout: 2 * time.Second}, nil, nil)
	result := m.Deliver(context.Background(), testMessage())
	srv.wait(t)
	if !result.OK {
		t.Fatalf("expected success, log: %v", result.Log)
	}
}

// STARTTLSで暗号化に切り替えた後にEHLOをやり直すこと。
func TestMailer_Deliver_StartTLS(t *testing.T) {
	certSrv := httptest.NewTLSServer(nil)
	defer certSrv.Close()

	srv := newFakeSMTPServer(t, nil)
	srv.tlsConfig = &tls.Config{Certificates: certSrv.TLS.Certificates}
	srv.start()

	pool := x509.NewCertPool()
	pool.AddCert(certSrv.Certificate())

	m := NewMailer(Config{
		Host:      "127.0.0.1",
		Port:      srv.port(),
		StartTLS:  true,
		Timeout:   2 * time.Second,
		TLSConfig: &tls.Config{RootCAs: pool, ServerName: "example.com"},
	}, nil, nil)

	result := m.Deliver(context.Background(), testMessage())
	srv.wait(t)
	if !result.OK {
		t.Fatalf("expected success, log: %v", result.Log)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.usedTLS {
		t.Error("expected TLS to be negotiated")
	}
	names := []string{}
	for _, c := range srv.commands {
		names = append(names, strings.Fields(c)[0])
	}
	if len(names) < 3 || names[0] != "EHLO" || names[1] != "STARTTLS" || names[2] != "EHLO" {
		t.Errorf("commands = %v, want EHLO STARTTLS EHLO ...", names)
	}
}

type countingObserver struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (o *countingObserver) RecordMailResult(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.successes++
	} else {
		o.failures++
	}
}

func TestFactory_ForSettings(t *testing.T) {
	obs := &countingObserver{}
	f := NewFactory("mail.skyline.test", time.Second, nil, WithResultObserver(obs))

	m := f.ForSettings(model.SMTPSettings{Server: " smtp.example.com ", Port: 587, User: "u", Pass: "p"})
	if m.cfg.Host != "smtp.example.com" {
		t.Errorf("Host = %q", m.cfg.Host)
	}
	if !m.cfg.StartTLS {
		t.Error("port 587 should use STARTTLS")
	}
	if m.cfg.HeloName != "mail.skyline.test" {
		t.Errorf("HeloName = %q", m.cfg.HeloName)
	}

	m = f.ForSettings(model.SMTPSettings{Server: "smtp.example.com", Port: 465})
	if m.cfg.StartTLS {
		t.Error("port 465 should not use STARTTLS")
	}

	// 未設定の場合は送信せずに失敗を通知する
	if f.NotifierFor(model.SMTPSettings{}).Send(context.Background(), testMessage()) {
		t.Error("expected failure for empty settings")
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestMailer_Deliver_RejectsInjectedRecipient(t *testing.T) {
	m := NewMailer(Config{Host: "127.0.0.1", Port: 1, Timeout: time.Second}, nil, nil)
	msg := testMessage()
	msg.To = "a@example.com>\r\nRCPT TO:<b@example.com"

	result := m.Deliver(context.Background(), msg)
	if result.OK {
		t.Fatal("expected failure")
	}
	if result.Log[0] != "Invalid recipient" {
		t.Errorf("log = %v", result.Log)
	}
}

func TestHeaderValue_StripsLineBreaks(t *testing.T) {
	got := headerValue("New Booking: Mara\r\nBcc: victim@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("headerValue kept line breaks: %q", got)
	}
	if got != "New Booking: Mara Bcc: victim@example.com" {
		t.Errorf("headerValue = %q", got)
	}
}
