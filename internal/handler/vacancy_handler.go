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
	"github.com/hitoshi/devjobs/internal/vacancy"
	"github.com/hitoshi/devjobs/internal/view"
)

// VacancyServiceInterface は求人ハンドラーが必要とするサービスインターフェース。
type VacancyServiceInterface interface {
	Create(ctx context.Context, authorID uuid.UUID, input model.VacancyInput) (*model.Vacancy, error)
	GetBySlug(ctx context.Context, slug string) (*model.Vacancy, error)
	GetForEdit(ctx context.Context, userID uuid.UUID, slug string) (*model.Vacancy, error)
	Edit(ctx context.Context, userID uuid.UUID, slug string, input model.VacancyInput) (*model.Vacancy, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ListAll(ctx context.Context) ([]*model.Vacancy, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*model.Vacancy, error)
	Search(ctx context.Context, query string) (string, []*model.Vacancy, error)
	Apply(ctx context.Context, slug string, input vacancy.ApplyInput, stored *upload.Stored) (*model.Vacancy, error)
	Candidates(ctx context.Context, userID, vacancyID uuid.UUID) (*model.Vacancy, error)
	Resume(ctx context.Context, userID, vacancyID uuid.UUID, file string) (io.ReadCloser, error)
}

const homeTagline = "Encuentra y Pública Trabajos para Desarrolladores Web"

// VacancyHandler は求人の一覧、作成、編集、削除、応募のHTTPハンドラー。
type VacancyHandler struct {
	responder
	service  VacancyServiceInterface
	uploader Uploader
	metrics  metrics.MetricsCollector
	cvPolicy upload.Policy
}

// NewVacancyHandler はVacancyHandlerを生成する。
func NewVacancyHandler(service VacancyServiceInterface, uploader Uploader, renderer *view.Renderer, collector metrics.MetricsCollector, maxCVBytes int64) *VacancyHandler {
	return &VacancyHandler{
		responder: responder{view: renderer},
		service:   service,
		uploader:  uploader,
		metrics:   collector,
		cvPolicy:  upload.CVPolicy(maxCVBytes),
	}
}

// Home は全求人の一覧を表示する。
// GET /
func (h *VacancyHandler) Home(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageHome, view.Page{
		Title:      "devJobs",
		Tagline:    homeTagline,
		ShowSearch: true,
		ShowButton: true,
		Data:       list,
	})
}

// Search は全文検索の結果を一覧ページで表示する。
// POST /buscador
func (h *VacancyHandler) Search(w http.ResponseWriter, r *http.Request) {
	var form struct {
		Query string `schema:"q"`
	}
	if err := decodeForm(r, &form); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	title, list, err := h.service.Search(r.Context(), form.Query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageHome, view.Page{
		Title:      title,
		ShowSearch: true,
		Data:       list,
	})
}

// NewForm は求人作成フォームを表示する。
// GET /vacantes/nueva
func (h *VacancyHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "/vacantes/nueva", false, model.VacancyInput{}, nil)
}

// Create は求人を作成して詳細ページへリダイレクトする。
// 作成者はセッションのユーザーで、フォームの値は使わない。
// POST /vacantes/nueva
func (h *VacancyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var input model.VacancyInput
	if err := decodeForm(r, &input); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	v, err := h.service.Create(r.Context(), userID, input)
	if msgs := validationMessages(err); msgs != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, "/vacantes/nueva", false, input, msgs)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.RecordVacancyCreated()
	http.Redirect(w, r, "/vacantes/"+v.Slug, http.StatusSeeOther)
}

// Show は求人の詳細と応募フォームを表示する。
// GET /vacantes/{slug}
func (h *VacancyHandler) Show(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	h.view.Render(w, r, http.StatusOK, view.PageVacancy, view.Page{
		Title:   v.Title,
		Tagline: v.Company,
		Data:    view.VacancyData{Vacancy: v, IsAuthor: model.IsAuthor(v, userID)},
	})
}

// Apply は履歴書を受け付けて応募者を追加する。
// POST /vacantes/{slug}
func (h *VacancyHandler) Apply(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	back := "/vacantes/" + slug

	stored, err := h.uploader.Accept(r.Context(), r, h.cvPolicy)
	if errors.Is(err, upload.ErrNoFile) {
		h.flash(w, r, view.FlashError, "Sube tu curriculum en PDF")
		h.redirectBack(w, r, back)
		return
	}
	if err != nil {
		flashRejectedUpload(h.responder, h.metrics, w, r, err, back)
		return
	}

	var input vacancy.ApplyInput
	if err := decodeValues(r.PostForm, &input); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	if _, err := h.service.Apply(r.Context(), slug, input, stored); err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.RecordApplication()
	h.flash(w, r, view.FlashSuccess, "Se envió tu Curriculum Correctamente")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// EditForm は作成者本人に編集フォームを表示する。
// GET /vacantes/editar/{slug}
func (h *VacancyHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	v, err := h.service.GetForEdit(r.Context(), userID, slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.renderForm(w, r, http.StatusOK, "/vacantes/editar/"+v.Slug, true, toInput(v), nil)
}

// Edit は許可リストの項目だけを更新する。作成者とスラッグは変わらない。
// POST /vacantes/editar/{slug}
func (h *VacancyHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	slug := chi.URLParam(r, "slug")

	var input model.VacancyInput
	if err := decodeForm(r, &input); err != nil {
		h.view.RenderError(w, r, http.StatusBadRequest, "Formulario no válido")
		return
	}

	v, err := h.service.Edit(r.Context(), userID, slug, input)
	if msgs := validationMessages(err); msgs != nil {
		h.renderForm(w, r, http.StatusUnprocessableEntity, "/vacantes/editar/"+slug, true, input, msgs)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	http.Redirect(w, r, "/vacantes/"+v.Slug, http.StatusSeeOther)
}

// Delete は作成者本人の求人を削除する。結果はテキストで返す。
// DELETE /vacantes/eliminar/{id}
func (h *VacancyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		plainText(w, http.StatusForbidden, "Error")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		plainText(w, http.StatusNotFound, "La vacante no existe")
		return
	}

	err = h.service.Delete(r.Context(), userID, id)
	switch {
	case err == nil:
		h.metrics.RecordVacancyDeleted()
		plainText(w, http.StatusOK, "Vacante eliminada correctamente")
	case model.IsKind(err, model.KindForbidden):
		plainText(w, http.StatusForbidden, "Error")
	case model.IsKind(err, model.KindNotFound):
		plainText(w, http.StatusNotFound, "La vacante no existe")
	default:
		slog.ErrorContext(r.Context(), "failed to delete vacancy",
			slog.String("vacancy_id", id.String()),
			slog.String("error", err.Error()),
		)
		plainText(w, http.StatusInternalServerError, "Error")
	}
}

// Admin は自分の求人を応募者数付きで表示する。
// GET /administracion
func (h *VacancyHandler) Admin(w http.ResponseWriter, r *http.Request) {
	current := middleware.UserFromContext(r.Context())

	list, err := h.service.ListByAuthor(r.Context(), current.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageAdmin, view.Page{
		Title:      "Panel de Administración",
		Tagline:    "Crea y Administra tus vacantes desde aquí",
		ShowButton: true,
		Data:       list,
	})
}

// Candidates は作成者本人に応募者一覧を表示する。
// GET /candidatos/{id}
func (h *VacancyHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, model.NewCandidatesNotFoundError())
		return
	}

	v, err := h.service.Candidates(r.Context(), userID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.view.Render(w, r, http.StatusOK, view.PageCandidates, view.Page{
		Title: "Candidatos Vacante - " + v.Title,
		Data:  v,
	})
}

// Resume は作成者本人に応募者の履歴書PDFを配信する。
// GET /candidatos/{id}/cv/{file}
func (h *VacancyHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, model.NewCandidatesNotFoundError())
		return
	}
	file := path.Base(chi.URLParam(r, "file"))

	rc, err := h.service.Resume(r.Context(), userID, id, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+file+`"`)
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, rc); err != nil {
		slog.WarnContext(r.Context(), "failed to stream resume", slog.String("error", err.Error()))
	}
}

func (h *VacancyHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, action string, editing bool, input model.VacancyInput, errs []string) {
	title := "Nueva Vacante"
	tagline := "Llena el formulario y publica tu vacante"
	if editing {
		title = "Editar Vacante - " + input.Title
		tagline = ""
	}

	h.view.Render(w, r, status, view.PageVacancyForm, view.Page{
		Title:   title,
		Tagline: tagline,
		Errors:  errs,
		Data: view.VacancyFormData{
			Action:    action,
			Editing:   editing,
			Input:     input,
			Contracts: view.Contracts,
		},
	})
}

// toInput は保存済みの求人を編集フォームの値に戻す。
func toInput(v *model.Vacancy) model.VacancyInput {
	input := model.VacancyInput{
		Title:       v.Title,
		Company:     v.Company,
		Location:    v.Location,
		Contract:    v.Contract,
		Description: v.Description,
	}
	if v.Salary != nil {
		input.Salary = *v.Salary
	}
	for i, s := range v.Skills {
		if i > 0 {
			input.Skills += ", "
		}
		input.Skills += s
	}
	return input
}
