// Package upload は管理画面からアップロードされたファイルの保存先を提供する。
// 保存先はサイト設定のstorageProviderでローカルディスクかWasabiを切り替える。
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hitoshi/skyline/internal/model"
)

// URLPrefix はローカル保存したファイルを配信するパス。
const URLPrefix = "/uploads/"

// Store はファイルを保存し、公開URLを返す。
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

// LocalStore はサーバーのディスクに保存する。
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore はLocalStoreを生成する。baseURLは公開URLの組み立てに使う。
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Dir は保存先ディレクトリを返す。
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put はファイルを書き込む。同名のファイルが既にある場合はエラーにする。
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return s.baseURL + URLPrefix + name, nil
}

// ObjectStore はS3互換のオブジェクトストレージに保存する。
type ObjectStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// ObjectStoreConfig はObjectStoreの接続設定。
type ObjectStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Secure          bool
	PublicBaseURL   string // 空の場合はエンドポイントとバケットから組み立てる
}

// NewObjectStore はS3互換ストレージのクライアントを生成する。
// 接続確認は行わず、最初のPutで失敗を検出する。
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage client: %w", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, publicBase: strings.TrimRight(base, "/")}, nil
}

// NewWasabiStore はサイト設定のWasabi情報からObjectStoreを生成する。
func NewWasabiStore(s model.WasabiSettings) (*ObjectStore, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("wasabi storage is not configured")
	}
	return NewObjectStore(ObjectStoreConfig{
		Endpoint:        fmt.Sprintf("s3.%s.wasabisys.com", s.Region),
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		Region:          s.Region,
		Bucket:          s.Bucket,
		Secure:          true,
		PublicBaseURL:   fmt.Sprintf("https://%s.s3.%s.wasabisys.com", s.Bucket, s.Region),
	})
}

// Put はオブジェクトをアップロードする。
func (s *ObjectStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.publicBase + "/" + name, nil
}

var (
	_ Store = (*LocalStore)(nil)
	_ Store = (*ObjectStore)(nil)
)
