package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/metrics"
	"github.com/hitoshi/devjobs/internal/middleware"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/upload"
	"github.com/hitoshi/devjobs/internal/user"
	"github.com/hitoshi/devjobs/internal/view"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Register(ctx context.Context, input user.RegistrationInput) (*model.User, error)
	Get(ctx context.Context, userID uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input user.ProfileInput, image *upload.Stored) (*model.User, error)
}

// Uploader はmultipartのファイル受け付けを行う。upload.Intakeが実装する。
type Uploader interface {
	Accept(ctx context.Context, r *http.Request, policy upload.Policy) (*upload.Stored, error)
	Store() upload.Store
}

// UserHandler はアカウント作成とプロフィール編集のHTTPハンドラー。
type UserHandler struct {
	responder
	service     UserServiceInterface
	uploader    Uploader
	metrics     metrics.MetricsCollector
	imagePolicy upload.Policy
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, uploader Uploader, renderer *view.Renderer, collector metrics.MetricsCollector, maxImageBytes int64) *UserHandler {
	return &UserHandler{
		responder:   responder{view: renderer},
		service:     service,
		uploader:    uploader,
		metrics:     collector,
		imagePolicy: upload.ProfileImagePolicy(maxImageBytes),
	}
}

// RegisterForm はアカウント作成フォームを表示する。
// GET /crear-cuenta
func (h *UserHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.view.Render(w, r, http.StatusOK, view.PageRegister, view.Page{
		Title:   "Crea tu cuenta en devJobs",
		Tagline: "Comienza a publicar tus vacantes gratis, solo debes crear una cuenta",
	})
}

// Register はアカウントを作成してログイン画面へリダイレクトする。
// POST /crear-cuenta
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input user.RegistrationInput
	if err := decodeForm(r, &input); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	_, err := h.service.Register(r.Context(), input)
	if err != nil {
		msgs := validationMessages(err)
		if msgs == nil && model.IsKind(err, model.KindConflict) {
			var appErr *model.AppError
			errors.As(err, &appErr)
			msgs = appErr.AllMessages()
		}
		if msgs == nil {
			h.fail(w, r, err)
			return
		}
		h.view.Render(w, r, http.StatusUnprocessableEntity, view.PageRegister, view.Page{
			Title:   "Crea tu cuenta en devJobs",
			Tagline: "Comienza a publicar tus vacantes gratis, solo debes crear una cuenta",
			Errors:  msgs,
			Data:    view.AccountFormData{Name: input.Name, Email: input.Email},
		})
		return
	}

	h.flash(w, r, view.FlashSuccess, "Cuenta creada correctamente, ya puedes iniciar sesión")
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// EditProfileForm はプロフィール編集フォームを表示する。
// GET /editar-perfil
func (h *UserHandler) EditProfileForm(w http.ResponseWriter, r *http.Request) {
	current := middleware.UserFromContext(r.Context())
	u, err := h.service.Get(r.Context(), current.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageProfile, view.Page{
		Title: "Edita tu perfil en devJobs",
		Data:  u,
		User:  u,
	})
}

// EditProfile はプロフィールを更新する。画像は任意。
// POST /editar-perfil
func (h *UserHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	current := middleware.UserFromContext(r.Context())

	image, err := h.uploader.Accept(r.Context(), r, h.imagePolicy)
	if err != nil && !errors.Is(err, upload.ErrNoFile) {
		h.rejectUpload(w, r, err, "/editar-perfil")
		return
	}

	var input user.ProfileInput
	if err := decodeValues(r.PostForm, &input); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), current.ID, input, image)
	if err != nil {
		if msgs := validationMessages(err); msgs != nil {
			h.view.Render(w, r, http.StatusUnprocessableEntity, view.PageProfile, view.Page{
				Title:  "Edita tu perfil en devJobs",
				Errors: msgs,
				Data:   current,
			})
			return
		}
		h.fail(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "profile updated", slog.String("user_id", u.ID.String()))
	h.flash(w, r, view.FlashSuccess, "Cambios Guardados Correctamente")
	http.Redirect(w, r, "/administracion", http.StatusSeeOther)
}

// ProfileImage は保存済みのプロフィール画像を配信する。
// GET /uploads/perfiles/{file}
func (h *UserHandler) ProfileImage(w http.ResponseWriter, r *http.Request) {
	name := path.Base(chi.URLParam(r, "file"))
	if upload.ValidateKey(user.ImageKey(name)) != nil {
		http.NotFound(w, r)
		return
	}

	rc, err := h.uploader.Store().Open(r.Context(), user.ImageKey(name))
	if err != nil {
		if errors.Is(err, upload.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	switch path.Ext(name) {
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "failed to stream profile image", slog.String("error", err.Error()))
	}
}

func (h *UserHandler) rejectUpload(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	flashRejectedUpload(h.responder, h.metrics, w, r, err, fallback)
}

// flashRejectedUpload はアップロード拒否をフラッシュで伝えて元の画面へ戻す。
func flashRejectedUpload(rs responder, collector metrics.MetricsCollector, w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var rejected *upload.RejectedError
	if !errors.As(err, &rejected) {
		rs.fail(w, r, err)
		return
	}

	collector.RecordUploadRejected(rejected.Reason)
	rs.flash(w, r, view.FlashError, rejected.Message)
	rs.redirectBack(w, r, fallback)
}
