// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind はユーザーに見せるエラーの分類。
// ハンドラーは種類ごとにHTTPステータスと表示方法を決める。
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindValidation     ErrorKind = "validation"
	KindForbidden      ErrorKind = "forbidden"
	KindUploadRejected ErrorKind = "upload_rejected"
	KindConflict       ErrorKind = "conflict"
	KindUnauthorized   ErrorKind = "unauthorized"
)

// AppError は画面にそのまま表示できるメッセージを持つドメインエラー。
// Messages はバリデーションのように複数のメッセージをまとめて返す場合に使う。
type AppError struct {
	Kind     ErrorKind
	Code     string
	Message  string
	Messages []string
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("[%s] %s", e.Code, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// AllMessages は表示用のメッセージ一覧を返す。
func (e *AppError) AllMessages() []string {
	if len(e.Messages) > 0 {
		return e.Messages
	}
	return []string{e.Message}
}

// 定義済みエラーコード
const (
	ErrCodeVacancyNotFound     = "VACANCY_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeNotAuthor           = "NOT_AUTHOR"
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeInvalidFileType     = "INVALID_FILE_TYPE"
	ErrCodeMissingFile         = "MISSING_FILE"
	ErrCodeTooManyFiles        = "TOO_MANY_FILES"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeMissingCredentials  = "MISSING_CREDENTIALS"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	ErrCodeCandidatesForbidden = "CANDIDATES_NOT_FOUND"
)

// IsKind はerrが指定種類のAppErrorを含むかを判定する。
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// NewVacancyNotFoundError は求人未検出エラーを生成する。
func NewVacancyNotFoundError(key string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    ErrCodeVacancyNotFound,
		Message: fmt.Sprintf("La vacante no existe: %s", key),
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    ErrCodeUserNotFound,
		Message: "Usuario no encontrado",
	}
}

// NewNotAuthorError は作成者以外が求人を操作しようとした場合のエラーを生成する。
func NewNotAuthorError() *AppError {
	return &AppError{
		Kind:    KindForbidden,
		Code:    ErrCodeNotAuthor,
		Message: "Error",
	}
}

// NewCandidatesNotFoundError は応募者一覧を閲覧できない場合のエラーを生成する。
// 求人が存在しない場合と作成者でない場合を区別しない。
func NewCandidatesNotFoundError() *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    ErrCodeCandidatesForbidden,
		Message: "No se encontraron candidatos",
	}
}

// NewValidationError はバリデーションエラーを生成する。messagesは表示順に並んでいること。
func NewValidationError(messages []string) *AppError {
	return &AppError{
		Kind:     KindValidation,
		Code:     ErrCodeValidation,
		Message:  "Revisa los campos del formulario",
		Messages: messages,
	}
}

// NewUploadRejectedError はアップロード拒否エラーを生成する。
func NewUploadRejectedError(code, message string) *AppError {
	return &AppError{
		Kind:    KindUploadRejected,
		Code:    code,
		Message: message,
	}
}

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError() *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    ErrCodeEmailTaken,
		Message: "Ese correo ya está registrado",
	}
}

// NewMissingCredentialsError はログインフォームの未入力エラーを生成する。
func NewMissingCredentialsError() *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    ErrCodeMissingCredentials,
		Message: "Todos los campos son obligatorios",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無で文言を変えない。
func NewInvalidCredentialsError() *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeInvalidCredentials,
		Message: "Email o password incorrectos",
	}
}

// NewInvalidResetTokenError は無効または期限切れの再設定トークンのエラーを生成する。
func NewInvalidResetTokenError() *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    ErrCodeInvalidResetToken,
		Message: "El formulario no es valido",
	}
}
