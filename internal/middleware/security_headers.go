package middleware

import "net/http"

// NewSecurityHeadersMiddleware はAPIレスポンス向けのセキュリティヘッダーを付与するミドルウェアを返す。
// アップロード画像は公開サイトから埋め込まれるため、Cross-Origin-Resource-Policyはcross-originとする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
