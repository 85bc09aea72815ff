package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/skyline/internal/catalog"
	"github.com/hitoshi/skyline/internal/feedimport"
	"github.com/hitoshi/skyline/internal/middleware"
	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/token"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn          func(ctx context.Context, login, password string) (string, error)
	changePasswordFn func(ctx context.Context, adminID, newPassword string) error
}

func (m *mockAuthService) Login(ctx context.Context, login, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, login, password)
	}
	return "", nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, adminID, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, adminID, newPassword)
	}
	return nil
}

type mockCatalogService struct {
	getAllDataFn   func(ctx context.Context) (*catalog.PublicData, error)
	getAdminDataFn func(ctx context.Context) (*catalog.AdminData, error)
}

func (m *mockCatalogService) GetAllData(ctx context.Context) (*catalog.PublicData, error) {
	if m.getAllDataFn != nil {
		return m.getAllDataFn(ctx)
	}
	return &catalog.PublicData{}, nil
}

func (m *mockCatalogService) GetAdminData(ctx context.Context) (*catalog.AdminData, error) {
	if m.getAdminDataFn != nil {
		return m.getAdminDataFn(ctx)
	}
	return &catalog.AdminData{}, nil
}

type mockRecordService struct {
	applyFn func(ctx context.Context, table, op, id string, fields map[string]any) (string, error)
	calls   int
}

func (m *mockRecordService) Apply(ctx context.Context, table, op, id string, fields map[string]any) (string, error) {
	m.calls++
	if m.applyFn != nil {
		return m.applyFn(ctx, table, op, id, fields)
	}
	return id, nil
}

type mockBookingService struct {
	createFn func(ctx context.Context, payload map[string]any) (string, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, payload map[string]any) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, payload)
	}
	return "", nil
}

type mockNewsletterService struct {
	subscribeFn func(ctx context.Context, email string) error
}

func (m *mockNewsletterService) Subscribe(ctx context.Context, email string) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, email)
	}
	return nil
}

type mockPlannerService struct {
	savePlanFn   func(ctx context.Context, email string, request, response json.RawMessage) (string, error)
	checkUsageFn func(ctx context.Context, email string) (bool, error)
}

func (m *mockPlannerService) SavePlan(ctx context.Context, email string, request, response json.RawMessage) (string, error) {
	if m.savePlanFn != nil {
		return m.savePlanFn(ctx, email, request, response)
	}
	return "", nil
}

func (m *mockPlannerService) CheckUsage(ctx context.Context, email string) (bool, error) {
	if m.checkUsageFn != nil {
		return m.checkUsageFn(ctx, email)
	}
	return true, nil
}

type mockSettingsService struct {
	updateFn func(ctx context.Context, raw []byte) (*model.SiteConfig, error)
}

func (m *mockSettingsService) Update(ctx context.Context, raw []byte) (*model.SiteConfig, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, raw)
	}
	return model.DecodeSiteConfig(raw)
}

type mockUploadService struct {
	saveFn   func(ctx context.Context, filename string, r io.Reader, size int64) (string, error)
	maxBytes int64
}

func (m *mockUploadService) Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, filename, r, size)
	}
	return "", nil
}

func (m *mockUploadService) MaxBytes() int64 {
	if m.maxBytes == 0 {
		return 1 << 20
	}
	return m.maxBytes
}

type mockMailProber struct {
	sendTestFn func(ctx context.Context, to string) error
}

func (m *mockMailProber) SendTest(ctx context.Context, to string) error {
	if m.sendTestFn != nil {
		return m.sendTestFn(ctx, to)
	}
	return nil
}

type mockFeedImporter struct {
	importFn func(ctx context.Context, feedURL string) (*feedimport.Result, error)
}

func (m *mockFeedImporter) Import(ctx context.Context, feedURL string) (*feedimport.Result, error) {
	if m.importFn != nil {
		return m.importFn(ctx, feedURL)
	}
	return &feedimport.Result{Feed: feedURL, Imported: []string{}}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- ヘルパー ---

const testTokenSecret = "handler-test-secret"

// testEnv はモックを差し込んだルーターと、認証済みリクエスト用のトークンを持つ。
type testEnv struct {
	deps   *RouterDeps
	router http.Handler
	token  string

	auth       *mockAuthService
	catalog    *mockCatalogService
	records    *mockRecordService
	bookings   *mockBookingService
	newsletter *mockNewsletterService
	planner    *mockPlannerService
	settings   *mockSettingsService
	uploads    *mockUploadService
	mail       *mockMailProber
	feeds      *mockFeedImporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := token.NewCodec(testTokenSecret)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	tok, err := codec.Issue("admin-1", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	env := &testEnv{
		token:      tok,
		auth:       &mockAuthService{},
		catalog:    &mockCatalogService{},
		records:    &mockRecordService{},
		bookings:   &mockBookingService{},
		newsletter: &mockNewsletterService{},
		planner:    &mockPlannerService{},
		settings:   &mockSettingsService{},
		uploads:    &mockUploadService{},
		mail:       &mockMailProber{},
		feeds:      &mockFeedImporter{},
	}
	env.deps = &RouterDeps{
		Authenticator:     middleware.NewAuthenticator(codec),
		Logger:            discardLogger(),
		AuthService:       env.auth,
		CatalogService:    env.catalog,
		RecordService:     env.records,
		BookingService:    env.bookings,
		NewsletterService: env.newsletter,
		PlannerService:    env.planner,
		SettingsService:   env.settings,
		UploadService:     env.uploads,
		MailProber:        env.mail,
		FeedImportService: env.feeds,
	}
	env.router = NewRouter(env.deps)
	return env
}

// call はactionを呼び出してレスポンスを返す。authがtrueならBearerトークンを付ける。
func (e *testEnv) call(t *testing.T, method, action string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, "/api?action="+action, r)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

// assertError はエラーレスポンスのステータスとコードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["code"] != code {
		t.Errorf("code = %v, want %s", body["code"], code)
	}
	if s, _ := body["error"].(string); s == "" {
		t.Error("error message should not be empty")
	}
	return body
}

func assertSuccess(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	return body
}
