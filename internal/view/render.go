// Package view はサーバーサイドのHTMLテンプレート描画とフラッシュメッセージを提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/devjobs/internal/middleware"
	"github.com/hitoshi/devjobs/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページテンプレート名
const (
	PageHome          = "home.html"
	PageVacancy       = "vacancy.html"
	PageVacancyForm   = "vacancy_form.html"
	PageLogin         = "login.html"
	PageRegister      = "register.html"
	PageResetRequest  = "reset_request.html"
	PageResetPassword = "reset_password.html"
	PageAdmin         = "admin.html"
	PageProfile       = "profile.html"
	PageCandidates    = "candidates.html"
	PageError         = "error.html"
)

var pages = []string{
	PageHome, PageVacancy, PageVacancyForm, PageLogin, PageRegister,
	PageResetRequest, PageResetPassword, PageAdmin, PageProfile,
	PageCandidates, PageError,
}

// Contracts は求人フォームで選べる契約形態。
var Contracts = []string{"Freelance", "Tiempo Completo", "Medio Tiempo", "Por Proyecto"}

// Page はレイアウトとページテンプレートに渡す値。
// User、CSRFToken、Flashes はRenderがリクエストから埋める。
type Page struct {
	Title      string
	Tagline    string
	ShowSearch bool
	ShowButton bool
	User       *model.User
	CSRFToken  string
	Flashes    Flashes
	Errors     []string
	Data       any
}

// Renderer はページごとにレイアウトと結合済みのテンプレートを保持する。
type Renderer struct {
	templates map[string]*template.Template
	flashes   *FlashStore
}

// New は埋め込みテンプレートを解析してRendererを生成する。
func New(flashes *FlashStore) (*Renderer, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		templates[page] = t
	}
	return &Renderer{templates: templates, flashes: flashes}, nil
}

// Flashes はフラッシュの保存先を返す。
func (rd *Renderer) Flashes() *FlashStore {
	return rd.flashes
}

// Render はページを描画する。描画に失敗した場合は何も書かずに500を返す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	t, ok := rd.templates[name]
	if !ok {
		slog.ErrorContext(r.Context(), "unknown template", slog.String("template", name))
		http.Error(w, "Error interno del servidor", http.StatusInternalServerError)
		return
	}

	if page.User == nil {
		page.User = middleware.UserFromContext(r.Context())
	}
	page.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	if rd.flashes != nil {
		popped := rd.flashes.Pop(w, r)
		if page.Flashes == nil {
			page.Flashes = popped
		} else {
			for kind, msgs := range popped {
				page.Flashes[kind] = append(page.Flashes[kind], msgs...)
			}
		}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		slog.ErrorContext(r.Context(), "failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Error interno del servidor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.WarnContext(r.Context(), "failed to write response", slog.String("error", err.Error()))
	}
}

// RenderError はエラーページを描画する。
func (rd *Renderer) RenderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.Render(w, r, status, PageError, Page{
		Title: http.StatusText(status),
		Data:  ErrorData{Status: status, Message: message},
	})
}

// ErrorData はエラーページの表示内容。
type ErrorData struct {
	Status  int
	Message string
}

// StaticHandler は/static配下の埋め込みアセットを配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": func(t time.Time) string {
		return t.Format("02/01/2006")
	},
	// richText は保存時にサニタイズ済みの説明文をそのまま出力する。
	"richText": func(s string) template.HTML {
		return template.HTML(s)
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"imageURL": func(name string) string {
		if name == "" {
			return ""
		}
		return "/uploads/perfiles/" + name
	},
}
