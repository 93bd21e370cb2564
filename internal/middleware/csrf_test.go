package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newCSRFHandler(t *testing.T, called *bool) http.Handler {
	t.Helper()
	return NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := newCSRFHandler(t, &called)

			req := httptest.NewRequest(method, "/", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Fatalf("handler should have been called for %s", method)
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

// GETで発行したトークンはCookieとコンテキストの両方に同じ値で入る
func TestCSRFMiddleware_GETRequest_IssuesTokenIntoContext(t *testing.T) {
	var ctxToken string
	handler := NewCSRFMiddleware(CSRFConfig{CookieSecure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxToken = CSRFTokenFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/vacantes/nueva", nil))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected csrf_token cookie to be set")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(cookie.Value))
	}
	if cookie.HttpOnly {
		t.Error("csrf cookie should be readable from JavaScript")
	}
	if !cookie.Secure {
		t.Error("csrf cookie should honour CookieSecure")
	}
	if ctxToken != cookie.Value {
		t.Errorf("context token = %q, want cookie value %q", ctxToken, cookie.Value)
	}
}

func TestCSRFMiddleware_GETRequest_ExistingCookie_DoesNotReplace(t *testing.T) {
	var ctxToken string
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxToken = CSRFTokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Error("existing cookie should not be replaced")
	}
	if ctxToken != "existing" {
		t.Errorf("context token = %q, want existing", ctxToken)
	}
}

func TestCSRFMiddleware_StateChanging_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		method string
		cookie string
		header string
	}{
		{"Cookieなし", http.MethodPost, "", "tok"},
		{"トークンなし", http.MethodPost, "tok", ""},
		{"不一致", http.MethodPost, "tok", "other"},
		{"DELETEトークンなし", http.MethodDelete, "tok", ""},
		{"PUTトークンなし", http.MethodPut, "tok", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newCSRFHandler(t, &called)

			req := httptest.NewRequest(tt.method, "/vacantes/nueva", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if called {
				t.Error("handler should not be called")
			}
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
		})
	}
}

func TestCSRFMiddleware_HeaderToken_PassesThrough(t *testing.T) {
	called := false
	handler := newCSRFHandler(t, &called)

	req := httptest.NewRequest(http.MethodDelete, "/vacantes/eliminar/x", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "valid-token"})
	req.Header.Set(csrfHeaderName, "valid-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusOK {
		t.Errorf("called = %v, status = %d", called, w.Code)
	}
}

func TestCSRFMiddleware_FormField_PassesThrough(t *testing.T) {
	called := false
	handler := newCSRFHandler(t, &called)

	form := url.Values{"email": {"ana@example.com"}, CSRFFieldName: {"valid-token"}}
	req := httptest.NewRequest(http.MethodPost, "/iniciar-sesion", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusOK {
		t.Errorf("called = %v, status = %d", called, w.Code)
	}
}

// multipartの本文は読まず、クエリ文字列のトークンだけを見る
func TestCSRFMiddleware_Multipart_UsesQueryToken(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField(CSRFFieldName, "valid-token")
	_ = mw.Close()

	t.Run("本文のトークンは無視", func(t *testing.T) {
		called := false
		handler := newCSRFHandler(t, &called)

		req := httptest.NewRequest(http.MethodPost, "/vacantes/go-dev", bytes.NewReader(body.Bytes()))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "valid-token"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if called || w.Code != http.StatusForbidden {
			t.Errorf("called = %v, status = %d", called, w.Code)
		}
		if req.MultipartForm != nil {
			t.Error("multipart body should not be parsed by the CSRF middleware")
		}
	})

	t.Run("クエリのトークン", func(t *testing.T) {
		called := false
		handler := newCSRFHandler(t, &called)

		req := httptest.NewRequest(http.MethodPost, "/vacantes/go-dev?_csrf=valid-token", bytes.NewReader(body.Bytes()))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "valid-token"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if !called || w.Code != http.StatusOK {
			t.Errorf("called = %v, status = %d", called, w.Code)
		}
	})
}
