// Package feedimport は外部ブログのRSS/Atomフィードから記事を下書きとして取り込む。
package feedimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/record"
	"github.com/hitoshi/skyline/internal/security"
)

// 既定値
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxBodySize = 5 << 20
	DefaultMaxItems    = 20
	excerptLength      = 200
	draftStatus        = "draft"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// HTMLSanitizer は取り込んだ本文のHTMLを無害化する。
type HTMLSanitizer interface {
	Sanitize(rawHTML string) string
}

// PostStore は記事の読み書き先。record.Storeが実装する。
type PostStore interface {
	ReadAll(ctx context.Context, table string) ([]record.Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (string, error)
}

// ImportObserver は取り込み件数を受け取る。メトリクス収集に使用する。
type ImportObserver interface {
	RecordFeedImport(imported, skipped int)
}

// Options はImporterの動作設定。
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
	MaxItems    int
	Observer    ImportObserver
}

// Result は取り込み結果。
type Result struct {
	Feed     string   `json:"feed"`
	Imported []string `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// Importer はフィードの取得、パース、記事の保存を行う。
type Importer struct {
	guard     SSRFValidator
	sanitizer HTMLSanitizer
	posts     PostStore
	opts      Options
	logger    *slog.Logger
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(guard SSRFValidator, sanitizer HTMLSanitizer, posts PostStore, opts Options, logger *slog.Logger) *Importer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		guard:     guard,
		sanitizer: sanitizer,
		posts:     posts,
		opts:      opts,
		logger:    logger,
	}
}

// Import はフィードURLから記事を取得し、postsに下書きとして保存する。
// 同じスラッグの記事が既にある場合はスキップする。
func (i *Importer) Import(ctx context.Context, feedURL string) (*Result, error) {
	feedURL = strings.TrimSpace(feedURL)
	if err := i.guard.ValidateURL(feedURL); err != nil {
		if errors.Is(err, security.ErrBlockedDestination) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	body, err := i.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		i.logger.Warn("feed parse failed",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseFailedError()
	}

	existing, err := i.existingSlugs(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Feed: parsed.Title, Imported: []string{}}
	for n, item := range parsed.Items {
		if n >= i.opts.MaxItems {
			break
		}
		if item == nil {
			continue
		}

		post := i.convert(item)
		if post == nil {
			result.Skipped++
			continue
		}
		slug := post["slug"].(string)
		if existing[slug] {
			result.Skipped++
			continue
		}

		if _, err := i.posts.Create(ctx, model.TablePosts, post); err != nil {
			return nil, fmt.Errorf("記事の保存に失敗しました: %w", err)
		}
		existing[slug] = true
		result.Imported = append(result.Imported, slug)
	}

	if i.opts.Observer != nil {
		i.opts.Observer.RecordFeedImport(len(result.Imported), result.Skipped)
	}
	i.logger.Info("feed imported",
		slog.String("feed_url", feedURL),
		slog.Int("imported", len(result.Imported)),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (i *Importer) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	client := i.guard.NewSafeClient(i.opts.Timeout, i.opts.MaxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		i.logger.Warn("feed fetch failed",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(fetchReason(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.opts.MaxBodySize+1))
	if err != nil {
		return nil, model.NewFetchFailedError(fetchReason(err))
	}
	if int64(len(body)) > i.opts.MaxBodySize {
		return nil, model.NewFetchFailedError("レスポンスが大きすぎます")
	}
	return body, nil
}

func fetchReason(err error) string {
	if errors.Is(err, security.ErrResponseTooLarge) {
		return "レスポンスが大きすぎます"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "タイムアウトしました"
	}
	return "接続できませんでした"
}

func (i *Importer) existingSlugs(ctx context.Context) (map[string]bool, error) {
	posts, err := i.posts.ReadAll(ctx, model.TablePosts)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	slugs := make(map[string]bool, len(posts))
	for _, p := range posts {
		if s, ok := p["slug"].(string); ok && s != "" {
			slugs[s] = true
		}
	}
	return slugs, nil
}

// convert はフィードの記事をpostsの列に変換する。タイトルが無い記事はnilを返す。
func (i *Importer) convert(item *gofeed.Item) map[string]any {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}
	slug := Slugify(title)
	if slug == "" {
		return nil
	}

	raw := item.Content
	if raw == "" {
		raw = item.Description
	}

	post := map[string]any{
		"title":          title,
		"slug":           slug,
		"content":        i.sanitizer.Sanitize(raw),
		"excerpt":        Excerpt(raw, excerptLength),
		"featured_image": imageOf(item),
		"author_name":    authorOf(item),
		"tags":           tagsOf(item),
		"status":         draftStatus,
	}

	// 公開日時があれば作成日時として引き継ぐ
	if item.PublishedParsed != nil {
		post["created_at"] = item.PublishedParsed.UTC().Format(time.RFC3339)
	} else if item.UpdatedParsed != nil {
		post["created_at"] = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return post
}

func authorOf(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func tagsOf(item *gofeed.Item) []string {
	tags := make([]string, 0, len(item.Categories))
	seen := make(map[string]bool, len(item.Categories))
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, c)
	}
	return tags
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
