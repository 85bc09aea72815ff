// Package auth は管理者のログイン、初期作成、パスワード変更を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// TokenIssuer はログイン成功時にトークンを発行する。token.Codecが実装する。
type TokenIssuer interface {
	Issue(subjectID string, ttl time.Duration) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	TokenTTL time.Duration

	// AllowBootstrap がtrueの場合、管理者が1人もいなければ
	// BootstrapUsername/BootstrapPasswordでのログイン時に管理者を作成する。
	AllowBootstrap    bool
	BootstrapUsername string
	BootstrapPassword string

	BcryptCost int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	admins repository.AdminRepository
	tokens TokenIssuer
	config ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(admins repository.AdminRepository, tokens TokenIssuer, config ServiceConfig, logger *slog.Logger) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		admins: admins,
		tokens: tokens,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Login はユーザー名またはメールアドレスとパスワードを検証し、トークンを発行する。
// 管理者が未登録で初期作成が許可されている場合は、初期資格情報で管理者を作成する。
func (s *Service) Login(ctx context.Context, login, password string) (string, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return "", model.NewValidationError("ユーザー名とパスワードを入力してください")
	}

	admin, err := s.admins.FindByLogin(ctx, login)
	if err != nil {
		return "", fmt.Errorf("failed to find admin: %w", err)
	}

	if admin == nil {
		admin, err = s.bootstrapOnLogin(ctx, login, password)
		if err != nil {
			return "", err
		}
	} else if !checkPassword(admin.PasswordHash, password) {
		s.logger.Warn("login failed: password mismatch", slog.String("admin_id", admin.ID))
		return "", model.NewInvalidCredentialsError()
	}

	tok, err := s.tokens.Issue(admin.ID, s.config.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("admin logged in", slog.String("admin_id", admin.ID))
	return tok, nil
}

// bootstrapOnLogin は未登録のログイン名に対して初期管理者の作成を試みる。
// 作成条件を満たさない場合は認証エラーを返す。
func (s *Service) bootstrapOnLogin(ctx context.Context, login, password string) (*model.Admin, error) {
	matches := strings.EqualFold(login, s.config.BootstrapUsername) && password == s.config.BootstrapPassword
	if !matches {
		s.logger.Warn("login failed: unknown admin")
		return nil, model.NewInvalidCredentialsError()
	}

	count, err := s.admins.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.config.AllowBootstrap {
		s.logger.Warn("bootstrap admin login rejected: bootstrap disabled")
		return nil, model.NewSetupClosedError()
	}

	admin, _, err := s.Bootstrap(ctx, s.config.BootstrapUsername, "", password)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// Bootstrap は管理者を作成する。同じユーザー名の管理者が既に存在する場合は
// 既存の管理者を返し、createdはfalseとなる。
func (s *Service) Bootstrap(ctx context.Context, username, email, password string) (admin *model.Admin, created bool, err error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, false, model.NewValidationError("ユーザー名を入力してください")
	}
	if len(password) < MinPasswordLength {
		return nil, false, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上にしてください", MinPasswordLength))
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	admin = &model.Admin{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err = s.admins.Create(ctx, admin)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create admin: %w", err)
	}
	if !created {
		// 同時に作成された場合は先に作成された管理者を使う
		existing, err := s.admins.FindByLogin(ctx, username)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find admin: %w", err)
		}
		if existing == nil {
			return nil, false, errors.New("admin vanished after conflicting insert")
		}
		return existing, false, nil
	}

	s.logger.Info("admin created", slog.String("admin_id", admin.ID), slog.String("username", username))
	return admin, true, nil
}

// ChangePassword は管理者のパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, adminID, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上にしてください", MinPasswordLength))
	}

	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		return model.NewUnauthorizedError(model.ErrCodeUnauthorized, "管理者が見つかりません")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.admins.UpdatePasswordHash(ctx, admin.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("admin password changed", slog.String("admin_id", admin.ID))
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
