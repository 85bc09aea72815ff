// Package token は管理者ログイン用の署名付きトークンを発行・検証する。
//
// トークンは "<payload>.<signature>" の2セグメントで構成される。
// payloadは {"uid": 管理者ID, "exp": 失効時刻(Unix秒)} のJSONをbase64化したもの、
// signatureはpayloadセグメントのHMAC-SHA256を16進文字列にしたもの。
// 暗号化はしないため、payloadには管理者ID以外を入れないこと。
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedToken はトークンの形式が不正な場合のエラー。
	ErrMalformedToken = errors.New("malformed token")
	// ErrBadSignature は署名が一致しない場合のエラー。
	ErrBadSignature = errors.New("bad token signature")
	// ErrExpired はトークンが失効している場合のエラー。
	ErrExpired = errors.New("token expired")
)

const separator = "."

type payload struct {
	UID string `json:"uid"`
	Exp int64  `json:"exp"`
}

// Codec はサーバー秘密鍵でトークンを署名・検証する。
// 状態を持たないため複数goroutineから同時に使用できる。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec はCodecを生成する。secretが空の場合はエラーを返す。
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue はsubjectIDに対してttl後に失効するトークンを発行する。
func (c *Codec) Issue(subjectID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject id must not be empty")
	}

	body, err := json.Marshal(payload{
		UID: subjectID,
		Exp: c.now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(body)
	return encoded + separator + c.sign(encoded), nil
}

// Verify はトークンを検証し、subjectIDを返す。
// 検証は形式、署名、有効期限の順に行う。
func (c *Codec) Verify(tok string) (string, error) {
	parts := strings.Split(tok, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrMalformedToken
	}

	expected := c.sign(parts[0])
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return "", ErrBadSignature
	}

	body, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedToken
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.UID == "" {
		return "", ErrMalformedToken
	}

	if p.Exp <= c.now().Unix() {
		return "", ErrExpired
	}

	return p.UID, nil
}

// sign はpayloadセグメントのHMAC-SHA256を16進文字列で返す。
func (c *Codec) sign(data string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
