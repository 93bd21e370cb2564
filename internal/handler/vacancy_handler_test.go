package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
	"github.com/hitoshi/devjobs/internal/upload"
	"github.com/hitoshi/devjobs/internal/vacancy"
	"github.com/hitoshi/devjobs/internal/view"
)

func sampleVacancy() *model.Vacancy {
	return &model.Vacancy{
		ID:       uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Slug:     "go-dev-1a2b3c4d",
		Title:    "Go Dev",
		Company:  "Acme",
		Location: "Remoto",
		Contract: "Freelance",
		Skills:   []string{"Go"},
		AuthorID: anaID,
		Author:   &model.User{ID: anaID, Name: "Ana"},
	}
}

// multipartBody は応募フォームのmultipartボディを作る。
func multipartBody(t *testing.T, fields map[string]string, withFile bool) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if withFile {
		fw, err := mw.CreateFormFile("cv", "cv.pdf")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte("%PDF-1.4\n"))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestVacancyHandler_Home_ListsVacancies(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.listAllFn = func(ctx context.Context) ([]*model.Vacancy, error) {
		return []*model.Vacancy{sampleVacancy()}, nil
	}

	w := env.get(t, "/", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	containsAll(t, w.Body.String(), "Go Dev", `href="/vacantes/go-dev-1a2b3c4d"`)
}

func TestVacancyHandler_Search(t *testing.T) {
	env := newTestEnv(t)
	var gotQuery string
	env.vacancy.searchFn = func(ctx context.Context, query string) (string, []*model.Vacancy, error) {
		gotQuery = query
		return "Resultados para la Búsqueda: " + query, []*model.Vacancy{sampleVacancy()}, nil
	}

	w := env.postForm(t, "/buscador", url.Values{"q": {"golang"}}, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotQuery != "golang" {
		t.Errorf("query = %q, want %q", gotQuery, "golang")
	}
	containsAll(t, w.Body.String(), "Resultados para la Búsqueda: golang", "Go Dev")
}

// フォームに偽装した作成者は無視され、セッションのユーザーが作成者になる
func TestVacancyHandler_Create_AuthorFromSession(t *testing.T) {
	env := newTestEnv(t)
	var gotAuthor uuid.UUID
	var gotInput model.VacancyInput
	env.vacancy.createFn = func(ctx context.Context, authorID uuid.UUID, input model.VacancyInput) (*model.Vacancy, error) {
		gotAuthor = authorID
		gotInput = input
		return &model.Vacancy{Slug: "go-dev-1a2b3c4d"}, nil
	}

	form := url.Values{
		"titulo":    {"Go Dev"},
		"empresa":   {"Acme"},
		"ubicacion": {"Remoto"},
		"contrato":  {"Freelance"},
		"skills":    {"Go,SQL"},
		"autor":     {luisID.String()},
	}
	w := env.postForm(t, "/vacantes/nueva", form, testSession)

	assertRedirect(t, w, "/vacantes/go-dev-1a2b3c4d")
	if gotAuthor != anaID {
		t.Errorf("author = %s, want session user %s", gotAuthor, anaID)
	}
	if gotInput.Title != "Go Dev" || gotInput.Skills != "Go,SQL" {
		t.Errorf("input = %+v", gotInput)
	}
}

func TestVacancyHandler_Create_ValidationRerendersForm(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.createFn = func(ctx context.Context, authorID uuid.UUID, input model.VacancyInput) (*model.Vacancy, error) {
		return nil, model.NewValidationError([]string{"Agrega una Empresa"})
	}

	w := env.postForm(t, "/vacantes/nueva", url.Values{"titulo": {"Go Dev"}}, testSession)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	containsAll(t, w.Body.String(), "Agrega una Empresa", `value="Go Dev"`)
}

func TestVacancyHandler_Show(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.getBySlugFn = func(ctx context.Context, slug string) (*model.Vacancy, error) {
		if slug == "go-dev-1a2b3c4d" {
			return sampleVacancy(), nil
		}
		return nil, model.NewVacancyNotFoundError(slug)
	}

	w := env.get(t, "/vacantes/go-dev-1a2b3c4d", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "/candidatos/") {
		t.Error("anonymous visitor should not see the candidates link")
	}

	w = env.get(t, "/vacantes/go-dev-1a2b3c4d", testSession)
	containsAll(t, w.Body.String(), "/candidatos/33333333-3333-3333-3333-333333333333")

	w = env.get(t, "/vacantes/no-existe", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestVacancyHandler_Edit_NotAuthor(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.getForEditFn = func(ctx context.Context, userID uuid.UUID, slug string) (*model.Vacancy, error) {
		if userID != anaID {
			return nil, model.NewNotAuthorError()
		}
		return sampleVacancy(), nil
	}

	w := env.get(t, "/vacantes/editar/go-dev-1a2b3c4d", otherSession)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = env.get(t, "/vacantes/editar/go-dev-1a2b3c4d", testSession)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	containsAll(t, w.Body.String(), `action="/vacantes/editar/go-dev-1a2b3c4d"`, `value="Go Dev"`)
}

func TestVacancyHandler_Edit_RedirectsToDetail(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.editFn = func(ctx context.Context, userID uuid.UUID, slug string, input model.VacancyInput) (*model.Vacancy, error) {
		if userID != anaID {
			t.Errorf("userID = %s, want %s", userID, anaID)
		}
		return &model.Vacancy{Slug: slug, Title: input.Title}, nil
	}

	w := env.postForm(t, "/vacantes/editar/go-dev-1a2b3c4d", url.Values{"titulo": {"Go Senior"}}, testSession)
	assertRedirect(t, w, "/vacantes/go-dev-1a2b3c4d")
}

func TestVacancyHandler_Delete(t *testing.T) {
	existing := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	tests := []struct {
		name     string
		session  string
		id       string
		wantCode int
		wantBody string
	}{
		{"author deletes", testSession, existing.String(), http.StatusOK, "Vacante eliminada correctamente"},
		{"other user", otherSession, existing.String(), http.StatusForbidden, "Error"},
		{"missing vacancy", testSession, uuid.NewString(), http.StatusNotFound, "La vacante no existe"},
		{"malformed id", testSession, "no-es-un-id", http.StatusNotFound, "La vacante no existe"},
		{"anonymous", "", existing.String(), http.StatusForbidden, "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.vacancy.deleteFn = func(ctx context.Context, userID, id uuid.UUID) error {
				if id != existing {
					return model.NewVacancyNotFoundError(id.String())
				}
				if userID != anaID {
					return model.NewNotAuthorError()
				}
				return nil
			}

			w := env.serve(t, request(http.MethodDelete, "/vacantes/eliminar/"+tt.id, nil, "", tt.session))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestVacancyHandler_Apply(t *testing.T) {
	t.Run("stores resume and redirects home", func(t *testing.T) {
		env := newTestEnv(t)
		env.uploader.acceptFn = func(policy upload.Policy) (*upload.Stored, error) {
			if policy.Field != "cv" {
				t.Errorf("policy field = %q, want cv", policy.Field)
			}
			return &upload.Stored{Name: "abc.pdf", Key: "cv/abc.pdf"}, nil
		}
		var gotInput vacancy.ApplyInput
		var gotStored *upload.Stored
		env.vacancy.applyFn = func(ctx context.Context, slug string, input vacancy.ApplyInput, stored *upload.Stored) (*model.Vacancy, error) {
			gotInput, gotStored = input, stored
			return sampleVacancy(), nil
		}

		body, ct := multipartBody(t, map[string]string{"nombre": "Luis", "email": "luis@example.com"}, true)
		w := env.serve(t, request(http.MethodPost, "/vacantes/go-dev-1a2b3c4d", body, ct, ""))

		assertRedirect(t, w, "/")
		if gotInput.Name != "Luis" || gotInput.Email != "luis@example.com" {
			t.Errorf("input = %+v", gotInput)
		}
		if gotStored == nil || gotStored.Name != "abc.pdf" {
			t.Errorf("stored = %+v", gotStored)
		}
		if got := env.flashes(w)[view.FlashSuccess]; len(got) != 1 || got[0] != "Se envió tu Curriculum Correctamente" {
			t.Errorf("flash = %v", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := multipartBody(t, map[string]string{"nombre": "Luis"}, false)
		w := env.serve(t, request(http.MethodPost, "/vacantes/go-dev-1a2b3c4d", body, ct, ""))

		assertRedirect(t, w, "/vacantes/go-dev-1a2b3c4d")
		if got := env.flashes(w)[view.FlashError]; len(got) != 1 || got[0] != "Sube tu curriculum en PDF" {
			t.Errorf("flash = %v", got)
		}
	})

	t.Run("rejected upload", func(t *testing.T) {
		env := newTestEnv(t)
		env.uploader.acceptFn = func(policy upload.Policy) (*upload.Stored, error) {
			return nil, &upload.RejectedError{Reason: upload.ReasonType, Message: "Formato No Válido"}
		}
		body, ct := multipartBody(t, map[string]string{"nombre": "Luis"}, true)
		w := env.serve(t, request(http.MethodPost, "/vacantes/go-dev-1a2b3c4d", body, ct, ""))

		assertRedirect(t, w, "/vacantes/go-dev-1a2b3c4d")
		if got := env.flashes(w)[view.FlashError]; len(got) != 1 || got[0] != "Formato No Válido" {
			t.Errorf("flash = %v", got)
		}
	})
}

func TestVacancyHandler_Candidates(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	env.vacancy.candidatesFn = func(ctx context.Context, userID, vacancyID uuid.UUID) (*model.Vacancy, error) {
		if userID != anaID {
			return nil, model.NewCandidatesNotFoundError()
		}
		v := sampleVacancy()
		v.Candidates = []model.Candidate{{Name: "Luis", Email: "luis@example.com", Resume: "abc.pdf"}}
		return v, nil
	}

	w := env.get(t, "/candidatos/"+id.String(), testSession)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	containsAll(t, w.Body.String(), "luis@example.com", "/candidatos/"+id.String()+"/cv/abc.pdf")

	w = env.get(t, "/candidatos/"+id.String(), otherSession)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if strings.Contains(w.Body.String(), "luis@example.com") {
		t.Error("candidates should not leak to other users")
	}
}

func TestVacancyHandler_Resume(t *testing.T) {
	env := newTestEnv(t)
	env.vacancy.resumeFn = func(ctx context.Context, userID, vacancyID uuid.UUID, file string) (io.ReadCloser, error) {
		if userID != anaID {
			return nil, model.NewCandidatesNotFoundError()
		}
		if file != "abc.pdf" {
			t.Errorf("file = %q, want abc.pdf", file)
		}
		return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
	}

	target := "/candidatos/33333333-3333-3333-3333-333333333333/cv/abc.pdf"
	w := env.get(t, target, testSession)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}

	if w := env.get(t, target, otherSession); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestVacancyHandler_Admin_ListsOwnVacancies(t *testing.T) {
	env := newTestEnv(t)
	var gotAuthor uuid.UUID
	env.vacancy.listByAuthorFn = func(ctx context.Context, authorID uuid.UUID) ([]*model.Vacancy, error) {
		gotAuthor = authorID
		v := sampleVacancy()
		v.CandidateCount = 2
		return []*model.Vacancy{v}, nil
	}

	w := env.get(t, "/administracion", testSession)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotAuthor != anaID {
		t.Errorf("author = %s, want %s", gotAuthor, anaID)
	}
	containsAll(t, w.Body.String(), "Go Dev", "data-eliminar")
}
