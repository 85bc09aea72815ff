package security

import (
	"strings"
	"testing"
)

func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}

// 記事本文で使うタグは残ること。
func TestSanitize_KeepsArticleMarkup(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落と強調", "<p>Great <strong>migration</strong> season</p>", []string{"<p>", "<strong>migration</strong>"}},
		{"見出し", "<h2>Day 1</h2><h3>Arrival</h3>", []string{"<h2>Day 1</h2>", "<h3>Arrival</h3>"}},
		{"リスト", "<ul><li>Lodge</li><li>Game drive</li></ul>", []string{"<ul>", "<li>Lodge</li>"}},
		{"図版", `<figure><img src="https://cdn.example.com/mara.jpg" alt="Mara"><figcaption>Mara</figcaption></figure>`,
			[]string{"<figure>", "https://cdn.example.com/mara.jpg", `alt="Mara"`, "<figcaption>Mara</figcaption>"}},
		{"リンク", `<a href="https://example.com/story">story</a>`, []string{"https://example.com/story", `target="_blank"`, "noopener", "noreferrer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// 危険な要素と属性は除去されること。
func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{"script", `<p>ok</p><script>alert('xss')</script>`, []string{"<script", "alert"}},
		{"iframe", `<iframe src="https://evil.example.com"></iframe>`, []string{"<iframe", "evil.example.com"}},
		{"style", `<style>body{display:none}</style><p>ok</p>`, []string{"<style", "display:none"}},
		{"イベント属性", `<p onclick="steal()">ok</p>`, []string{"onclick", "steal"}},
		{"javascript URI", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"http画像", `<img src="http://example.com/a.png">`, []string{"http://example.com/a.png"}},
		{"data URI画像", `<img src="data:image/png;base64,AAAA">`, []string{"data:image"}},
		{"h1とdiv", `<div><h1>Title</h1></div>`, []string{"<div", "<h1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(strings.ToLower(got), strings.ToLower(absent)) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<h2>Safari</h2><p>Day <em>one</em></p><a href="https://example.com">more</a>`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("二重サニタイズで結果が変わった: %q -> %q", once, twice)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	if got := NewContentSanitizer().Sanitize("   "); got != "" {
		t.Errorf("Sanitize(blank) = %q, want empty", got)
	}
}

// メール本文に埋め込むテキストはタグを含まずエスケープされること。
func TestEscapeText(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"Jane Doe", "Jane Doe"},
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{`<script>alert("x")</script>Jane`, "Jane"},
		{"<b>bold</b> name", "bold name"},
	}

	for _, tt := range tests {
		if got := sanitizer.EscapeText(tt.input); got != tt.want {
			t.Errorf("EscapeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
