package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/skyline/internal/model"
)

// DefaultMaxBytes はアップロードできるファイルサイズの上限の既定値。
const DefaultMaxBytes int64 = 10 << 20

// 許可する拡張子とContent-Type。
// svgはスクリプトを含められ、/uploads/から同一オリジンで配信されるため受け付けない。
var allowedTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"pdf":  "application/pdf",
}

// SiteConfigProvider は保存先の選択に使うサイト設定を返す。
type SiteConfigProvider interface {
	Get(ctx context.Context) (*model.SiteConfig, error)
}

// Service はアップロードの検証と保存先の振り分けを行う。
type Service struct {
	settings SiteConfigProvider
	local    Store
	maxBytes int64
	logger   *slog.Logger

	// newRemote はWasabi設定から保存先を生成する。テストで差し替える。
	newRemote func(model.WasabiSettings) (Store, error)
}

// NewService はServiceを生成する。maxBytesが0以下の場合はDefaultMaxBytesを使う。
func NewService(settings SiteConfigProvider, local Store, maxBytes int64, logger *slog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		settings: settings,
		local:    local,
		maxBytes: maxBytes,
		logger:   logger,
		newRemote: func(s model.WasabiSettings) (Store, error) {
			return NewWasabiStore(s)
		},
	}
}

// MaxBytes はアップロードできるファイルサイズの上限を返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Save はファイルを img_<uuid>.<拡張子> の名前で保存し、公開URLを返す。
func (s *Service) Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	ext := Extension(filename)
	contentType, ok := allowedTypes[ext]
	if !ok {
		return "", model.NewInvalidFileError(fmt.Sprintf("対応していないファイル形式です: %q", ext))
	}
	if size <= 0 {
		return "", model.NewInvalidFileError("ファイルが空です")
	}
	if size > s.maxBytes {
		return "", model.NewInvalidFileError(fmt.Sprintf("ファイルサイズは%dMBまでです", s.maxBytes>>20))
	}

	store, provider, err := s.storeFor(ctx)
	if err != nil {
		return "", err
	}

	name := "img_" + uuid.New().String() + "." + ext
	url, err := store.Put(ctx, name, io.LimitReader(r, size), size, contentType)
	if err != nil {
		s.logger.Error("upload failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return "", model.NewUploadFailedError()
	}

	s.logger.Info("file uploaded",
		slog.String("provider", provider),
		slog.String("name", name),
		slog.Int64("size", size),
	)
	return url, nil
}

func (s *Service) storeFor(ctx context.Context) (Store, string, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}
	if !cfg.UsesWasabi() {
		return s.local, "local", nil
	}

	store, err := s.newRemote(cfg.Wasabi)
	if err != nil {
		s.logger.Error("object storage unavailable", slog.String("error", err.Error()))
		return nil, "", model.NewUploadFailedError()
	}
	return store, model.StorageProviderWasabi, nil
}

// Extension はファイル名から小文字の拡張子（ドットなし）を返す。
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
