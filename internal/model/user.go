// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// User は求人を掲載するアカウントを表す。
// ResetToken と ResetExpires はパスワード再設定フローの進行中のみ設定され、
// 常に両方がセットされるか、両方がnilになる。
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Image        string
	ResetToken   *string
	ResetExpires *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasValidResetToken はtokenが保存済みトークンと一致し、かつ有効期限がnowより後であるかを判定する。
// 期限ちょうどの時刻は無効として扱う。
func (u *User) HasValidResetToken(token string, now time.Time) bool {
	if u == nil || u.ResetToken == nil || u.ResetExpires == nil || token == "" {
		return false
	}
	return *u.ResetToken == token && now.Before(*u.ResetExpires)
}

// SetReset はパスワード再設定トークンと有効期限を同時に設定する。
func (u *User) SetReset(token string, expires time.Time) {
	u.ResetToken = &token
	u.ResetExpires = &expires
}

// ClearReset はパスワード再設定トークンと有効期限を同時にクリアする。
func (u *User) ClearReset() {
	u.ResetToken = nil
	u.ResetExpires = nil
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}
