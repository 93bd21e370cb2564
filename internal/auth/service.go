// Package auth はログイン、セッション管理、パスワード再設定フローを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/devjobs/internal/mail"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserNotFound は再設定要求のメールアドレスに該当するアカウントがないことを表す。
	// 画面に出すかどうかはハンドラーが設定で決める。
	ErrUserNotFound = errors.New("user not found")

	// ErrMailDelivery は再設定メールの送信失敗を表す。トークンは保存済み。
	ErrMailDelivery = errors.New("mail delivery failed")
)

// resetTokenBytes は再設定トークンの乱数バイト数（16進で40文字）。
const resetTokenBytes = 20

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	ResetTokenTTL time.Duration // 再設定トークンの有効期間
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	mailer      mail.Mailer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	mailer mail.Mailer,
	config ServiceConfig,
) *Service {
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mailer:      mailer,
		config:      config,
		now:         time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// 未登録とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewMissingCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID.String()))
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.InfoContext(ctx, "user logged out")
	return nil
}

// CurrentUser はセッションIDから現在のユーザーを取得する。
// セッションがない、期限切れ、ユーザー削除済みの場合は (nil, nil) を返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// RequestPasswordReset は再設定トークンを発行してメールで送る。
// 該当アカウントがない場合はErrUserNotFound、送信失敗はErrMailDeliveryをラップして返す。
func (s *Service) RequestPasswordReset(ctx context.Context, email, baseURL string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrUserNotFound
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	token, err := generateToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := s.now()
	user.SetReset(token, now.Add(s.config.ResetTokenTTL))
	user.UpdatedAt = now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	msg := mail.Message{
		To:       user.Email,
		ToName:   user.Name,
		Subject:  "Password Reset",
		ResetURL: strings.TrimRight(baseURL, "/") + "/reestablecer-password/" + token,
		Template: "reset",
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	slog.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID.String()))
	return nil
}

// ValidateResetToken はトークンが有効なユーザーを返す。
// 不明なトークンと期限切れのトークンは区別しない。
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*model.User, error) {
	now := s.now()
	user, err := s.userRepo.FindByValidResetToken(ctx, token, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by token: %w", err)
	}
	if user == nil || !user.HasValidResetToken(token, now) {
		return nil, model.NewInvalidResetTokenError()
	}
	return user, nil
}

// ResetPassword はトークンを再検証したうえでパスワードを更新し、トークンを無効化する。
// 既存のセッションもすべて破棄する。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}

	if newPassword == "" {
		return model.NewValidationError([]string{"El password no puede ir vacío"})
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.ClearReset()
	user.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	revoked, err := s.sessionRepo.DeleteByUserID(ctx, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to revoke sessions after password reset",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	slog.InfoContext(ctx, "password reset completed",
		slog.String("user_id", user.ID.String()),
		slog.Int64("sessions_revoked", revoked),
	)
	return nil
}

// HashPassword はbcryptでパスワードをハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateToken は暗号的に安全な乱数を16進文字列で返す。
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
