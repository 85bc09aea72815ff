// Package newsletter はニュースレター購読の受付を提供する。
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/repository"
)

// Service は購読受付のサービス層。
type Service struct {
	repo   repository.SubscriberRepository
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SubscriberRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Subscribe はメールアドレスを購読者として登録する。
// 登録済みのアドレスは成功として扱い、重複行は作らない。
func (s *Service) Subscribe(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.NewValidationError("メールアドレスが指定されていません")
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}

	added, err := s.repo.AddIgnoreDuplicate(ctx, uuid.New().String(), email)
	if err != nil {
		return fmt.Errorf("購読者の登録に失敗しました: %w", err)
	}

	s.logger.Info("subscriber added", slog.Bool("new", added))
	return nil
}
