package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/devjobs/internal/auth"
	"github.com/hitoshi/devjobs/internal/metrics"
	"github.com/hitoshi/devjobs/internal/middleware"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/view"
)

const loginPath = "/iniciar-sesion"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RequestPasswordReset(ctx context.Context, email, baseURL string) error
	ValidateResetToken(ctx context.Context, token string) (*model.User, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）

	// RevealUnknownEmail が true の場合、未登録のメールアドレスへの再設定要求に
	// 「No existe esa cuenta」を表示する。既定では登録の有無に関わらず同じ応答を返す。
	RevealUnknownEmail bool
}

// loginForm はログインフォーム。
type loginForm struct {
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

// AuthHandler はログイン、ログアウト、パスワード再設定のHTTPハンドラー。
type AuthHandler struct {
	responder
	service AuthServiceInterface
	metrics metrics.MetricsCollector
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *view.Renderer, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		responder: responder{view: renderer},
		service:   service,
		metrics:   collector,
		config:    config,
	}
}

// LoginForm はログインフォームを表示する。
// GET /iniciar-sesion
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.view.Render(w, r, http.StatusOK, view.PageLogin, view.Page{Title: "Iniciar Sesión devJobs"})
}

// Login は認証してセッションCookieを発行し、管理パネルへリダイレクトする。
// POST /iniciar-sesion
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := decodeForm(r, &form); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	session, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		var appErr *model.AppError
		if !errors.As(err, &appErr) {
			h.fail(w, r, err)
			return
		}
		h.metrics.RecordLogin(false)
		h.flash(w, r, view.FlashError, appErr.AllMessages()...)
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}

	h.metrics.RecordLogin(true)
	middleware.SetSessionCookie(w, session.ID, h.config.SessionMaxAge, h.config.CookieSecure)
	http.Redirect(w, r, "/administracion", http.StatusSeeOther)
}

// Logout はセッションを破棄してログイン画面へ戻す。
// GET /cerrar-sesion
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.ErrorContext(r.Context(), "failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.config.CookieSecure)
	h.flash(w, r, view.FlashSuccess, "Cerraste sesión correctamente")
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// ResetRequestForm はパスワード再設定の要求フォームを表示する。
// GET /reestablecer-password
func (h *AuthHandler) ResetRequestForm(w http.ResponseWriter, r *http.Request) {
	h.view.Render(w, r, http.StatusOK, view.PageResetRequest, view.Page{
		Title:   "Reestablece tu Password",
		Tagline: "Si ya tienes una cuenta pero olvidaste tu password, coloca tu email",
	})
}

// RequestReset は再設定トークンを発行してメールで送る。
// POST /reestablecer-password
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var form struct {
		Email string `schema:"email"`
	}
	if err := decodeForm(r, &form); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	err := h.service.RequestPasswordReset(r.Context(), form.Email, h.config.BaseURL)
	switch {
	case err == nil:
		h.metrics.RecordResetRequested()
	case errors.Is(err, auth.ErrUserNotFound):
		if h.config.RevealUnknownEmail {
			h.flash(w, r, view.FlashError, "No existe esa cuenta")
			http.Redirect(w, r, "/reestablecer-password", http.StatusSeeOther)
			return
		}
	case errors.Is(err, auth.ErrMailDelivery):
		h.metrics.RecordResetRequested()
		h.metrics.RecordMailFailure()
		slog.ErrorContext(r.Context(), "failed to deliver reset mail", slog.String("error", err.Error()))
		h.flash(w, r, view.FlashError, "No se pudo enviar el email, intenta de nuevo más tarde")
		http.Redirect(w, r, "/reestablecer-password", http.StatusSeeOther)
		return
	default:
		h.fail(w, r, err)
		return
	}

	h.flash(w, r, view.FlashSuccess, "Revisa tu email para las indicaciones")
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// ResetPasswordForm はトークンが有効な場合に新しいパスワードのフォームを表示する。
// GET /reestablecer-password/{token}
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		h.invalidToken(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageResetPassword, view.Page{
		Title: "Nuevo Password",
		Data:  view.ResetPasswordData{Token: token},
	})
}

// ResetPassword はトークンを再検証してパスワードを更新する。
// POST /reestablecer-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var form struct {
		Password string `schema:"password"`
	}
	if err := decodeForm(r, &form); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	err := h.service.ResetPassword(r.Context(), token, form.Password)
	if msgs := validationMessages(err); msgs != nil {
		h.view.Render(w, r, http.StatusUnprocessableEntity, view.PageResetPassword, view.Page{
			Title:  "Nuevo Password",
			Errors: msgs,
			Data:   view.ResetPasswordData{Token: token},
		})
		return
	}
	if err != nil {
		h.invalidToken(w, r, err)
		return
	}

	h.flash(w, r, view.FlashSuccess, "Tu password se ha modificado correctamente")
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// invalidToken は無効・期限切れのトークンを再設定要求フォームへ戻す。
func (h *AuthHandler) invalidToken(w http.ResponseWriter, r *http.Request, err error) {
	if !model.IsKind(err, model.KindNotFound) {
		h.fail(w, r, err)
		return
	}
	h.flash(w, r, view.FlashError, "El formulario ya no es valido, intenta de nuevo")
	http.Redirect(w, r, "/reestablecer-password", http.StatusSeeOther)
}
