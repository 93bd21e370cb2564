package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hitoshi/devjobs/internal/model"
)

// --- モック定義 ---

type mockUserResolver struct {
	currentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockUserResolver) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

var testUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func validResolver() *mockUserResolver {
	return &mockUserResolver{
		currentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid-session-id" {
				return &model.User{ID: testUserID, Name: "Ana", Email: "ana@example.com"}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsUser(t *testing.T) {
	mw := NewSessionMiddleware(validResolver())

	var captured *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.ID != testUserID {
		t.Errorf("user = %+v, want ID %s", captured, testUserID)
	}
}

// セッションがなくてもリクエストは通り、ユーザーはnilのまま
func TestSessionMiddleware_Anonymous_PassesThrough(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		fn     func(ctx context.Context, sessionID string) (*model.User, error)
	}{
		{name: "Cookieなし"},
		{name: "空のCookie", cookie: &http.Cookie{Name: SessionCookieName, Value: ""}},
		{name: "期限切れ", cookie: &http.Cookie{Name: SessionCookieName, Value: "expired"}},
		{
			name:   "リポジトリエラー",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "x"},
			fn: func(ctx context.Context, sessionID string) (*model.User, error) {
				return nil, errors.New("db down")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := validResolver()
			if tt.fn != nil {
				resolver.currentUserFn = tt.fn
			}
			called := false
			handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if u := UserFromContext(r.Context()); u != nil {
					t.Errorf("user = %+v, want nil", u)
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("handler should be called")
			}
		})
	}
}

func TestRequireUser_Anonymous_RedirectsToLogin(t *testing.T) {
	handler := RequireUser("/iniciar-sesion")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/administracion", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/iniciar-sesion" {
		t.Errorf("Location = %q, want /iniciar-sesion", loc)
	}
}

func TestRequireUser_Authenticated_PassesThrough(t *testing.T) {
	called := false
	handler := RequireUser("/iniciar-sesion")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/administracion", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &model.User{ID: testUserID}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("handler should be called")
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("expected no user ID in empty context")
	}

	ctx := ContextWithUser(context.Background(), &model.User{ID: testUserID})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != testUserID {
		t.Errorf("UserIDFromContext = (%s, %v), want (%s, true)", id, ok, testUserID)
	}
}

func TestSessionCookie_SetAndClear(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, "sid", 3600, true)
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Value != "sid" || !c.HttpOnly || !c.Secure || c.MaxAge != 3600 {
		t.Errorf("unexpected session cookie: %+v", c)
	}

	w = httptest.NewRecorder()
	ClearSessionCookie(w, false)
	if c := w.Result().Cookies()[0]; c.MaxAge >= 0 {
		t.Errorf("cleared cookie MaxAge = %d, want negative", c.MaxAge)
	}
}
