package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP はレート制限やログに使うクライアントIPを返す。
// X-Forwarded-Forの先頭、X-Real-IP、RemoteAddrの順に参照する。
// 前段のリバースプロキシがこれらのヘッダーを上書きする構成を前提とする。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
