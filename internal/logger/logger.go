// Package logger は構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerがnilの場合はos.Stdoutに出力する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// ログレベルは設定読み込み前に決める必要があるため、LOG_LEVEL環境変数を直接参照する。
func SetupDefault(w io.Writer) *slog.Logger {
	l := Setup(w, ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(l)
	return l
}

// ParseLevel はdebug/info/warn/errorの文字列をslog.Levelに変換する。
// 未知の値と空文字列はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
