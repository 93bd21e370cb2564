package model

import (
	"time"

	"github.com/google/uuid"
)

// Vacancy は求人（vacante）を表す。
// AuthorID は作成時に一度だけ設定され、以後の編集で変更されない。
type Vacancy struct {
	ID          uuid.UUID
	Slug        string
	Title       string
	Company     string
	Location    string
	Contract    string
	Salary      *string
	Description string
	Skills      []string
	AuthorID    uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Author は詳細表示のために展開された作成者。展開しない検索ではnil。
	Author *User
	// Candidates は応募者一覧。作成者向けの表示でのみ読み込まれる。
	Candidates []Candidate
	// CandidateCount は管理パネル向けの応募者数。
	CandidateCount int
}

// Candidate は求人への応募を表す。Resume は保存済み履歴書のファイル名。
type Candidate struct {
	ID        uuid.UUID
	VacancyID uuid.UUID
	Name      string
	Email     string
	Resume    string
	CreatedAt time.Time
}

// VacancyInput は求人の作成・編集フォームで受け付けるフィールドの許可リスト。
// 作成者を表すフィールドを持たないため、フォームに作成者IDを偽装しても永続化に届かない。
type VacancyInput struct {
	Title       string `schema:"titulo" validate:"required"`
	Company     string `schema:"empresa" validate:"required"`
	Location    string `schema:"ubicacion" validate:"required"`
	Contract    string `schema:"contrato" validate:"required"`
	Salary      string `schema:"salario"`
	Description string `schema:"descripcion"`
	Skills      string `schema:"skills" validate:"required"`
}

// IsAuthor はuserIDが求人の作成者であるかを判定する。
// nilの求人やuuid.Nilのユーザーは作成者とみなさない。
func IsAuthor(v *Vacancy, userID uuid.UUID) bool {
	if v == nil || userID == uuid.Nil || v.AuthorID == uuid.Nil {
		return false
	}
	return v.AuthorID == userID
}
