// Package user はアカウント登録とプロフィール編集のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/auth"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/repository"
	"github.com/hitoshi/devjobs/internal/security"
	"github.com/hitoshi/devjobs/internal/upload"
)

// RegistrationInput はアカウント作成フォーム。
type RegistrationInput struct {
	Name     string `schema:"nombre"`
	Email    string `schema:"email"`
	Password string `schema:"password"`
	Confirm  string `schema:"confirmar"`
}

// ProfileInput はプロフィール編集フォーム。Password は空なら変更しない。
type ProfileInput struct {
	Name     string `schema:"nombre"`
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.Sanitizer
	store     upload.Store
	validate  *validator.Validate
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.Sanitizer, store upload.Store) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		store:     store,
		validate:  validator.New(),
	}
}

// ValidateRegistration は登録フォームを検証し、全てのメッセージを返す。
// inputの名前とメールアドレスはサニタイズ後の値に書き換えられる。
func (s *Service) ValidateRegistration(input *RegistrationInput) []string {
	input.Name = s.sanitizer.Text(input.Name)
	input.Email = strings.TrimSpace(input.Email)

	var msgs []string
	if input.Name == "" {
		msgs = append(msgs, "El Nombre es Obligatorio")
	}
	if s.validate.Var(input.Email, "required,email") != nil {
		msgs = append(msgs, "El email debe ser valido")
	}
	if input.Password == "" {
		msgs = append(msgs, "El password no puede ir vacio")
	}
	if input.Confirm == "" {
		msgs = append(msgs, "Confirmar password no puede ir vacio")
	}
	if input.Password != "" && input.Confirm != "" && input.Password != input.Confirm {
		msgs = append(msgs, "El password es diferente")
	}
	return msgs
}

// Register はアカウントを作成する。
func (s *Service) Register(ctx context.Context, input RegistrationInput) (*model.User, error) {
	if msgs := s.ValidateRegistration(&input); len(msgs) > 0 {
		return nil, model.NewValidationError(msgs)
	}

	existing, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &model.User{
		ID:           uuid.New(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "アカウントを作成しました", slog.String("user_id", u.ID.String()))
	return u, nil
}

// Get はユーザーを取得する。
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// UpdateProfile は名前、メールアドレス、パスワード（入力時のみ）、画像（アップロード時のみ）を更新する。
// 画像を差し替えた場合、古い画像は削除する（失敗はログのみ）。
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileInput, image *upload.Stored) (*model.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		s.discard(ctx, image)
		return nil, err
	}

	name := s.sanitizer.Text(input.Name)
	email := strings.TrimSpace(input.Email)
	var msgs []string
	if name == "" {
		msgs = append(msgs, "El nombre no puede ir vacio")
	}
	if s.validate.Var(email, "required,email") != nil {
		msgs = append(msgs, "El email debe ser valido")
	}
	if len(msgs) > 0 {
		s.discard(ctx, image)
		return nil, model.NewValidationError(msgs)
	}

	if !strings.EqualFold(email, u.Email) {
		other, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			s.discard(ctx, image)
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if other != nil && other.ID != u.ID {
			s.discard(ctx, image)
			return nil, model.NewEmailTakenError()
		}
	}

	u.Name = name
	u.Email = email
	if input.Password != "" {
		hash, err := auth.HashPassword(input.Password)
		if err != nil {
			s.discard(ctx, image)
			return nil, err
		}
		u.PasswordHash = hash
	}

	oldImage := u.Image
	if image != nil {
		u.Image = image.Name
	}
	u.UpdatedAt = time.Now()

	if err := s.userRepo.Update(ctx, u); err != nil {
		s.discard(ctx, image)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	if image != nil && oldImage != "" && oldImage != image.Name {
		if err := s.store.Delete(ctx, ImageKey(oldImage)); err != nil {
			slog.WarnContext(ctx, "古いプロフィール画像の削除に失敗しました",
				slog.String("image", oldImage),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.InfoContext(ctx, "プロフィールを更新しました", slog.String("user_id", u.ID.String()))
	return u, nil
}

// ImageKey はプロフィール画像のファイル名から保存先のキーを返す。
func ImageKey(name string) string {
	return upload.ProfileImagePolicy(0).Prefix + "/" + name
}

func (s *Service) discard(ctx context.Context, image *upload.Stored) {
	if image == nil {
		return
	}
	if err := s.store.Delete(ctx, image.Key); err != nil {
		slog.WarnContext(ctx, "アップロード済み画像の削除に失敗しました",
			slog.String("key", image.Key),
			slog.String("error", err.Error()),
		)
	}
}
