// Package repository はデータ永続化のインターフェースを定義する。
// 見つからない場合は (nil, nil) を返し、エラーへの変換はサービス層が行う。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
)

// ErrDuplicate は一意制約違反を表す。制約名を付けてラップして返す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はアカウントの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByValidResetToken はトークンが一致し、かつ有効期限がnowより後のユーザーを検索する。
	// 期限切れと不一致は区別せずnilを返す。
	FindByValidResetToken(ctx context.Context, token string, now time.Time) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateをラップして返す。
	Create(ctx context.Context, user *model.User) error

	// Update はプロフィール、パスワード、再設定トークンをまとめて更新する。
	Update(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID はnowの時点で有効なセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string, now time.Time) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// VacancyRepository は求人の永続化インターフェース。
type VacancyRepository interface {
	// FindBySlug はslugで求人を取得し、作成者を展開する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Vacancy, error)

	// FindByID は内部IDで求人を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id uuid.UUID) (*model.Vacancy, error)

	// ListAll は全求人を新しい順に返す。
	ListAll(ctx context.Context) ([]*model.Vacancy, error)

	// ListByAuthor は作成者の求人を応募者数付きで新しい順に返す。
	ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*model.Vacancy, error)

	// Search は全文検索で一致する求人を返す。
	Search(ctx context.Context, query string) ([]*model.Vacancy, error)

	// SlugExists はslugが使用済みかを返す。
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Create は求人を作成する。slug重複時はErrDuplicateをラップして返す。
	Create(ctx context.Context, vacancy *model.Vacancy) error

	// UpdateBySlug は編集可能なフィールドのみを更新し、更新後の求人を返す。
	// author_id は更新対象に含めない。見つからない場合はnilを返す。
	UpdateBySlug(ctx context.Context, slug string, vacancy *model.Vacancy) (*model.Vacancy, error)

	// Delete は指定IDの求人を削除する。応募者はCASCADE削除される。
	// 削除対象がなかった場合はfalseを返す。
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// CandidateRepository は応募者の永続化インターフェース。
type CandidateRepository interface {
	// Append は求人の応募者一覧の末尾に応募を追加する。
	Append(ctx context.Context, candidate *model.Candidate) error

	// ListByVacancy は応募順に応募者を返す。
	ListByVacancy(ctx context.Context, vacancyID uuid.UUID) ([]model.Candidate, error)

	// FindByResume は求人と履歴書ファイル名で応募を検索する。見つからない場合はnilを返す。
	FindByResume(ctx context.Context, vacancyID uuid.UUID, resume string) (*model.Candidate, error)
}
