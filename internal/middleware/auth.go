// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/token"
)

// ErrMissingToken はBearerトークンが送られていない、または形式が不正な場合のエラー。
var ErrMissingToken = errors.New("missing bearer token")

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminIDContextKey はリクエストコンテキストに管理者IDを格納するためのキー。
var adminIDContextKey = contextKey("admin_id")

// authHeaderCandidates はBearerトークンを探すヘッダーの順序。
// リバースプロキシやCGI経由でAuthorizationが書き換えられる環境向けに代替ヘッダーも参照する。
var authHeaderCandidates = []string{
	"Authorization",
	"X-Forwarded-Authorization",
	"Redirect-Http-Authorization",
	"X-Authorization",
}

var bearerPattern = regexp.MustCompile(`(?i)^bearer\s+(\S+)$`)

// TokenVerifier はトークン検証のインターフェース。
// token.Codecの部分集合として定義する。
type TokenVerifier interface {
	Verify(tok string) (string, error)
}

// Authenticator はリクエストヘッダーのBearerトークンを検証する。
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate はヘッダーからBearerトークンを取り出して検証し、管理者IDを返す。
// トークンが見つからない場合はErrMissingToken、検証に失敗した場合はtokenパッケージのエラーを返す。
func (a *Authenticator) Authenticate(h http.Header) (string, error) {
	raw := bearerCredential(h)
	if raw == "" {
		return "", ErrMissingToken
	}
	return a.verifier.Verify(raw)
}

// bearerCredential は候補ヘッダーを順に調べ、最初に見つかったBearerトークンを返す。
// http.Header.Getはヘッダー名の大文字小文字を区別しない。
func bearerCredential(h http.Header) string {
	for _, name := range authHeaderCandidates {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if m := bearerPattern.FindStringSubmatch(v); m != nil {
			return m[1]
		}
		return ""
	}
	return ""
}

// NewAuthMiddleware はBearerトークンを検証し、管理者IDをコンテキストに注入するミドルウェアを返す。
// 拒否時のHTTPステータスは常に401とし、ボディのcodeで原因を区別する。
func NewAuthMiddleware(auth *Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID, err := auth.Authenticate(r.Header)
			if err != nil {
				slog.Warn("authentication rejected",
					slog.String("path", r.URL.Path),
					slog.String("action", r.URL.Query().Get("action")),
					slog.String("reason", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, AuthErrorFor(err))
				return
			}

			recordAdminID(r.Context(), adminID)
			ctx := ContextWithAdminID(r.Context(), adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthErrorFor は認証エラーをAPIErrorに変換する。
func AuthErrorFor(err error) *model.APIError {
	switch {
	case errors.Is(err, ErrMissingToken):
		return model.NewUnauthorizedError(model.ErrCodeMissingToken, "Unauthorized: Missing Token")
	case errors.Is(err, token.ErrMalformedToken):
		return model.NewUnauthorizedError(model.ErrCodeInvalidTokenFormat, "Invalid Token Format")
	case errors.Is(err, token.ErrBadSignature):
		return model.NewUnauthorizedError(model.ErrCodeInvalidTokenSignature, "Invalid Token Signature")
	case errors.Is(err, token.ErrExpired):
		return model.NewUnauthorizedError(model.ErrCodeTokenExpired, "Token Expired")
	default:
		return model.NewUnauthorizedError(model.ErrCodeUnauthorized, "Unauthorized")
	}
}

// AdminIDFromContext はリクエストコンテキストから管理者IDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func AdminIDFromContext(ctx context.Context) (string, error) {
	adminID, ok := ctx.Value(adminIDContextKey).(string)
	if !ok || adminID == "" {
		return "", fmt.Errorf("admin ID not found in context")
	}
	return adminID, nil
}

// ContextWithAdminID はコンテキストに管理者IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDContextKey, adminID)
}
