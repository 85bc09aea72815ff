package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SiteConfigKey はsettingsテーブルでサイト設定を保持する行のキー。
const SiteConfigKey = "site_config"

// DefaultSiteName はsiteNameが未設定の場合に使うサイト名。
const DefaultSiteName = "Skyline Savannah Tours"

// StorageProviderWasabi はS3互換ストレージ（Wasabi）を使うことを示す。
const StorageProviderWasabi = "wasabi"

// SiteConfig はサイト設定のシングルトン。
// 管理画面から送られたJSONはRawにそのまま保持し、
// サーバー側で参照する項目だけを型付きで取り出す。
type SiteConfig struct {
	SiteName        string         `json:"siteName"`
	AdminEmail      string         `json:"adminEmail"`
	SMTP            SMTPSettings   `json:"smtp"`
	StorageProvider string         `json:"storageProvider"`
	Wasabi          WasabiSettings `json:"wasabi"`

	Raw json.RawMessage `json:"-"`
}

// SMTPSettings はメール送信サーバーの設定。
type SMTPSettings struct {
	Server string  `json:"server"`
	Port   FlexInt `json:"port"`
	User   string  `json:"user"`
	Pass   string  `json:"pass"`
}

// Configured はサーバーホストが設定されているかを返す。
func (s SMTPSettings) Configured() bool {
	return strings.TrimSpace(s.Server) != ""
}

// PortOrDefault はポート未設定時に587を返す。
func (s SMTPSettings) PortOrDefault() int {
	if s.Port <= 0 {
		return 587
	}
	return int(s.Port)
}

// WasabiSettings はS3互換ストレージの認証情報とバケット。
type WasabiSettings struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
}

// Configured は接続に必要な項目がすべて設定されているかを返す。
func (w WasabiSettings) Configured() bool {
	return w.AccessKeyID != "" && w.SecretAccessKey != "" && w.Region != "" && w.Bucket != ""
}

// UsesWasabi はアップロード先にWasabiが選択されているかを返す。
func (c *SiteConfig) UsesWasabi() bool {
	return c != nil && strings.EqualFold(c.StorageProvider, StorageProviderWasabi)
}

// DecodeSiteConfig は保存済みのJSONからSiteConfigを組み立てる。
func DecodeSiteConfig(raw []byte) (*SiteConfig, error) {
	cfg := &SiteConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode site config: %w", err)
	}
	cfg.Raw = append(json.RawMessage(nil), raw...)
	return cfg, nil
}

// MarshalJSON は保存時のJSONをそのまま返す。
func (c *SiteConfig) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return []byte("{}"), nil
	}
	return c.Raw, nil
}

// secretKeys は公開レスポンスから取り除く認証情報のキー。
var secretKeys = map[string][]string{
	"smtp":   {"user", "pass"},
	"wasabi": {"accessKeyId", "secretAccessKey"},
}

// Public は認証情報を取り除いたコピーを返す。未認証のレスポンスにはこちらを使う。
// 管理画面の独自キーは残す。
func (c *SiteConfig) Public() (*SiteConfig, error) {
	if c == nil {
		return nil, nil
	}
	out := *c
	out.SMTP.User, out.SMTP.Pass = "", ""
	out.Wasabi.AccessKeyID, out.Wasabi.SecretAccessKey = "", ""
	if len(c.Raw) == 0 {
		return &out, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(c.Raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode site config: %w", err)
	}
	for section, keys := range secretKeys {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
			// オブジェクト以外は中身を判断できないため丸ごと落とす
			delete(doc, section)
			continue
		}
		for _, k := range keys {
			delete(nested, k)
		}
		b, err := json.Marshal(nested)
		if err != nil {
			return nil, fmt.Errorf("failed to encode site config: %w", err)
		}
		doc[section] = b
	}
	redacted, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode site config: %w", err)
	}
	out.Raw = redacted
	return &out, nil
}

// DisplayName はメール等に使うサイト名を返す。
func (c *SiteConfig) DisplayName() string {
	if c == nil || strings.TrimSpace(c.SiteName) == "" {
		return DefaultSiteName
	}
	return c.SiteName
}

// FlexInt は数値と数値文字列のどちらでも受け付ける整数。
// 管理画面のフォームからはポート番号が文字列で届くことがある。
type FlexInt int

// UnmarshalJSON はnull、数値、数値文字列を受け付ける。
func (n *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer value %q: %w", s, err)
	}
	*n = FlexInt(int(f))
	return nil
}
