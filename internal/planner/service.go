// Package planner はAI旅程生成の利用記録と利用回数の制限を扱う。
// 旅程の生成そのものはクライアント側の外部サービスが行う。
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/repository"
)

// DefaultLimit はメールアドレスごとの生成回数の上限の既定値。
const DefaultLimit = 2

// Service はAI旅程生成の利用管理サービス。
type Service struct {
	repo   repository.PlanRepository
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// limitが0以下の場合はDefaultLimitを使う。
func NewService(repo repository.PlanRepository, limit int, logger *slog.Logger) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, limit: limit, logger: logger, now: time.Now}
}

// SavePlan は生成の入出力を記録し、記録のIDを返す。
func (s *Service) SavePlan(ctx context.Context, email string, request, response json.RawMessage) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", model.NewValidationError("メールアドレスが指定されていません")
	}

	plan := &model.GeneratedPlan{
		ID:        uuid.New().String(),
		Email:     email,
		Request:   validJSON(request),
		Response:  validJSON(response),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return "", fmt.Errorf("利用記録の保存に失敗しました: %w", err)
	}

	s.logger.Info("generated plan saved", slog.String("plan_id", plan.ID))
	return plan.ID, nil
}

// CheckUsage は指定メールアドレスがまだ生成できるかを返す。
func (s *Service) CheckUsage(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, model.NewValidationError("メールアドレスが指定されていません")
	}

	count, err := s.repo.CountByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("利用回数の取得に失敗しました: %w", err)
	}
	return count < s.limit, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validJSON は不正なJSONをJSON文字列として包み直す。空の場合はnilを返す。
func validJSON(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(trimmed)
	return quoted
}
