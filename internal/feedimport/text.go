package feedimport

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const maxSlugLength = 80

// Slugify はタイトルからURL用のスラッグを生成する。
// 英数字以外はハイフンにまとめ、英数字が無い場合は空文字を返す。
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// アポストロフィは区切りにしない
		default:
			pendingDash = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	return strings.TrimRight(b.String()[:min(b.Len(), maxSlugLength)], "-")
}

// Excerpt はHTMLからテキストだけを取り出し、limit文字以内の抜粋を返す。
func Excerpt(rawHTML string, limit int) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var parts []string
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return truncate(strings.Join(strings.Fields(strings.Join(parts, " ")), " "), limit)
		case html.StartTagToken:
			if isSkippedTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isSkippedTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				parts = append(parts, string(z.Text()))
			}
		}
	}
}

func isSkippedTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}
