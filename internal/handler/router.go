package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/devjobs/internal/metrics"
	"github.com/hitoshi/devjobs/internal/middleware"
	"github.com/hitoshi/devjobs/internal/view"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	UserResolver   middleware.UserResolver
	RateLimiter    *middleware.RateLimiter
	CSRF           middleware.CSRFConfig
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	Renderer *view.Renderer
	Uploader Uploader

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 求人
	VacancyService VacancyServiceInterface
	MaxCVBytes     int64

	// ユーザー
	UserService   UserServiceInterface
	MaxImageBytes int64
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders
//	→ Session → CSRF → RateLimit(General)
//
// /health と /metrics と静的ファイルはチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deps.Renderer.RenderError(w, r, http.StatusInternalServerError, "Error interno del servidor")
	})))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", view.StaticHandler())

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, collector, deps.AuthConfig)
	vacancyHandler := NewVacancyHandler(deps.VacancyService, deps.Uploader, deps.Renderer, collector, deps.MaxCVBytes)
	userHandler := NewUserHandler(deps.UserService, deps.Uploader, deps.Renderer, collector, deps.MaxImageBytes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewMetricsMiddleware(collector))
		r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.CSRF.CookieSecure}))
		r.Use(middleware.NewSessionMiddleware(deps.UserResolver))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		sensitive := deps.RateLimiter.SensitiveMiddleware()

		// --- 認証不要のルート ---
		r.Get("/", vacancyHandler.Home)
		r.Post("/buscador", vacancyHandler.Search)

		r.Get("/crear-cuenta", userHandler.RegisterForm)
		r.With(sensitive).Post("/crear-cuenta", userHandler.Register)

		r.Get("/iniciar-sesion", authHandler.LoginForm)
		r.With(sensitive).Post("/iniciar-sesion", authHandler.Login)
		r.Get("/cerrar-sesion", authHandler.Logout)

		r.Route("/reestablecer-password", func(r chi.Router) {
			r.Get("/", authHandler.ResetRequestForm)
			r.With(sensitive).Post("/", authHandler.RequestReset)
			r.Get("/{token}", authHandler.ResetPasswordForm)
			r.With(sensitive).Post("/{token}", authHandler.ResetPassword)
		})

		r.Get("/uploads/perfiles/{file}", userHandler.ProfileImage)

		// 未ログインはリダイレクトせず403を返す
		r.Delete("/vacantes/eliminar/{id}", vacancyHandler.Delete)

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(loginPath))

			r.Get("/vacantes/nueva", vacancyHandler.NewForm)
			r.Post("/vacantes/nueva", vacancyHandler.Create)
			r.Get("/vacantes/editar/{slug}", vacancyHandler.EditForm)
			r.Post("/vacantes/editar/{slug}", vacancyHandler.Edit)

			r.Get("/administracion", vacancyHandler.Admin)
			r.Get("/editar-perfil", userHandler.EditProfileForm)
			r.Post("/editar-perfil", userHandler.EditProfile)

			r.Get("/candidatos/{id}", vacancyHandler.Candidates)
			r.Get("/candidatos/{id}/cv/{file}", vacancyHandler.Resume)
		})

		// /vacantes/nueva より後に登録しても chi は静的セグメントを優先する
		r.Get("/vacantes/{slug}", vacancyHandler.Show)
		r.With(sensitive).Post("/vacantes/{slug}", vacancyHandler.Apply)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			deps.Renderer.RenderError(w, r, http.StatusNotFound, "Página no encontrada")
		})
	})

	return r
}

// healthHandler はDB疎通を確認して200または503を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				plainText(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		plainText(w, http.StatusOK, "ok")
	}
}
