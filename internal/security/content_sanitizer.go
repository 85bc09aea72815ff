// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 外部フィードから取り込むブログ記事のHTMLと、予約フォームなど
// 利用者の入力をメール本文に埋め込む際のエスケープをbluemondayで行う。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は取り込んだ記事本文のHTMLを許可リストに従ってサニタイズする。
	Sanitize(rawHTML string) string

	// EscapeText はタグをすべて取り除き、HTMLに埋め込める形でテキストを返す。
	EscapeText(text string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	post   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 記事用ポリシー:
//   - 許可タグ: p, br, h2-h4, ul, ol, li, blockquote, pre, code, strong, em, a, img, figure, figcaption
//   - imgのsrc属性: httpsスキームのみ
//   - aタグ: target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		post:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize は記事本文のHTMLをサニタイズする。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.post.Sanitize(rawHTML))
}

// EscapeText はテキストからタグを除去し、特殊文字をエスケープする。
func (s *contentSanitizer) EscapeText(text string) string {
	return s.strict.Sanitize(text)
}
