package view

import "github.com/hitoshi/devjobs/internal/model"

// VacancyData は求人詳細ページの表示内容。
type VacancyData struct {
	Vacancy  *model.Vacancy
	IsAuthor bool
}

// VacancyFormData は求人の作成・編集フォームの表示内容。
type VacancyFormData struct {
	Action    string
	Editing   bool
	Input     model.VacancyInput
	Contracts []string
}

// AccountFormData はアカウント作成・ログインフォームの再表示用の値。パスワードは持たない。
type AccountFormData struct {
	Name  string
	Email string
}

// ResetPasswordData は新しいパスワード入力フォームの表示内容。
type ResetPasswordData struct {
	Token string
}
