// Package client はaction形式APIのGoクライアントと、取得データのキャッシュを提供する。
// 管理ツールや連携スクリプトから公開データの取得と管理操作を行うために使う。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"

	"github.com/hitoshi/skyline/internal/record"
)

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 32 << 20

// ErrNotConfirmed はHTTPとしては成功したが、ボディのsuccessがtrueでない場合のエラー。
var ErrNotConfirmed = errors.New("server did not confirm success")

// ResponseError はAPIがエラーレスポンスを返した場合のエラー。
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// Unauthorized は認証エラー（401）かを返す。
func (e *ResponseError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// errorBody はAPIのエラーレスポンス。
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client はaction形式APIのクライアント。
// Loginで取得したトークンを保持し、以降のリクエストにBearerトークンとして付ける。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string

	mu    sync.RWMutex
	token string
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointにはAPIのURL（例: https://api.example.com/api）を指定する。
func NewClient(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, logger: logger, endpoint: endpoint}
}

// Token は保持しているトークンを返す。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken はトークンを設定する。空文字列でログアウト状態になる。
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

// Login は管理者としてログインし、トークンを保持する。
func (c *Client) Login(ctx context.Context, login, password string) error {
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	body := map[string]string{"username": login, "password": password}
	if err := c.post(ctx, "login", body, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return ErrNotConfirmed
	}
	c.SetToken(resp.Token)
	return nil
}

// Collections はテーブル名ごとのレコード一覧。
type Collections map[string][]record.Record

// PublicData はget_all_dataの結果。
// Settingsはサイト設定のJSONで、未設定の場合はnull。
type PublicData struct {
	Collections Collections
	Settings    json.RawMessage
}

// GetAllData は公開データを一括取得する。
func (c *Client) GetAllData(ctx context.Context) (*PublicData, error) {
	var raw map[string]json.RawMessage
	if err := c.get(ctx, "get_all_data", nil, &raw); err != nil {
		return nil, err
	}

	data := &PublicData{Collections: Collections{}, Settings: raw["settings"]}
	delete(raw, "settings")
	cols, err := decodeCollections(raw)
	if err != nil {
		return nil, err
	}
	data.Collections = cols
	return data, nil
}

// AdminData はget_admin_dataの結果。Settingsは認証情報を含む完全な設定。
type AdminData struct {
	Collections Collections
	Settings    json.RawMessage
}

// GetAdminData は予約、購読者、生成プランと完全なサイト設定を取得する。認証が必要。
func (c *Client) GetAdminData(ctx context.Context) (*AdminData, error) {
	var raw map[string]json.RawMessage
	if err := c.get(ctx, "get_admin_data", nil, &raw); err != nil {
		return nil, err
	}

	settings := raw["settings"]
	delete(raw, "settings")
	cols, err := decodeCollections(raw)
	if err != nil {
		return nil, err
	}
	return &AdminData{Collections: cols, Settings: settings}, nil
}

// CRUD はレコードを操作し、対象のIDを返す。認証が必要。
func (c *Client) CRUD(ctx context.Context, table, op, id string, data map[string]any) (string, error) {
	req := map[string]any{"table": table, "op": op}
	if data != nil {
		req["data"] = data
	}
	if id != "" {
		req["id"] = id
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "crud", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateBooking は予約を送信し、予約IDを返す。
func (c *Client) CreateBooking(ctx context.Context, booking map[string]any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "create_booking", booking, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Subscribe はメールマガジンに登録する。
func (c *Client) Subscribe(ctx context.Context, email string) error {
	return c.post(ctx, "add_subscriber", map[string]string{"email": email}, nil)
}

// SavePlan は生成したプランを記録し、IDを返す。
func (c *Client) SavePlan(ctx context.Context, email string, request, response any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{"email": email, "request": request, "response": response}
	if err := c.post(ctx, "save_plan", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CheckAIUsage はプランをまだ生成できるかを返す。
func (c *Client) CheckAIUsage(ctx context.Context, email string) (bool, error) {
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.get(ctx, "check_ai_usage", url.Values{"email": {email}}, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// UpdateSettings はサイト設定を置き換える。認証が必要。
func (c *Client) UpdateSettings(ctx context.Context, settings json.RawMessage) error {
	return c.post(ctx, "update_settings", settings, nil)
}

// Upload はファイルをアップロードし、公開URLを返す。認証が必要。
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "upload_file", nil, &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) get(ctx context.Context, action string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, action, params, nil, "", out)
}

func (c *Client) post(ctx context.Context, action string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, action, nil, bytes.NewReader(b), "application/json", out)
}

// do はリクエストを送り、success:trueを確認してからoutにデコードする。
// 401を受け取った場合は保持しているトークンを破棄する。
func (c *Client) do(ctx context.Context, method, action string, params url.Values, body io.Reader, contentType string, out any) error {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed", slog.String("action", action), slog.String("error", err.Error()))
		return fmt.Errorf("request %s failed: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.SetToken("")
		}
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("api returned error",
			slog.String("action", action),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", eb.Code),
		)
		return &ResponseError{StatusCode: resp.StatusCode, Code: eb.Code, Message: msg}
	}

	var status struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !status.Success {
		return ErrNotConfirmed
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeCollections は配列のフィールドだけをレコード一覧として取り出す。
func decodeCollections(raw map[string]json.RawMessage) (Collections, error) {
	cols := Collections{}
	for key, v := range raw {
		trimmed := bytes.TrimSpace(v)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			continue
		}
		var rows []record.Record
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if rows == nil {
			rows = []record.Record{}
		}
		cols[key] = rows
	}
	return cols, nil
}
