package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/stockgate/internal/auth"
	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*auth.IssuedSession, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.IssuedSession, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		BaseURL:      "http://localhost:3000",
		CookieDomain: "",
		CookieSecure: false,
	}, nil)
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callbackRequest(query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	return req
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToOAuthURL(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); !strings.Contains(location, "accounts.google.com") {
		t.Errorf("Location = %q, should contain google oauth URL", location)
	}

	stateCookie := findCookie(resp, oauthStateCookie)
	if stateCookie == nil {
		t.Fatal("expected oauth state cookie")
	}
	if stateCookie.Value != gotState || gotState == "" {
		t.Errorf("state cookie = %q, state passed to provider = %q", stateCookie.Value, gotState)
	}
	if !stateCookie.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}
}

func TestAuthHandler_Callback_Accepted_SetsCookieAndRedirects(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.IssuedSession, error) {
			if code != "test-code" {
				t.Errorf("code = %q, want %q", code, "test-code")
			}
			return &auth.IssuedSession{
				Token:     "signed-token",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("code=test-code&state=test-state"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("Location = %q, want %q", location, "http://localhost:3000")
	}

	sessionCookie := findCookie(resp, middleware.SessionCookieName)
	if sessionCookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if sessionCookie.Value != "signed-token" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "signed-token")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want %v", sessionCookie.SameSite, http.SameSiteLaxMode)
	}
	if sessionCookie.MaxAge <= 0 || sessionCookie.MaxAge > 24*60*60 {
		t.Errorf("session cookie MaxAge = %d", sessionCookie.MaxAge)
	}

	if state := findCookie(resp, oauthStateCookie); state == nil || state.MaxAge >= 0 {
		t.Error("oauth state cookie should be cleared")
	}
}

func TestAuthHandler_Callback_Redirects(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		err      error
		wantCode string
	}{
		{"access denied", "code=c&state=test-state", auth.ErrAccessDenied, "AccessDenied"},
		{"wrapped access denied", "code=c&state=test-state", errors.Join(errors.New("x"), auth.ErrAccessDenied), "AccessDenied"},
		{"exchange failure", "code=c&state=test-state", errors.New("failed to exchange oauth code"), "Configuration"},
		{"provider consent error", "error=access_denied&state=test-state", nil, "AccessDenied"},
		{"missing code", "state=test-state", nil, "Default"},
		{"state mismatch", "code=c&state=other", nil, "Default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				handleCallbackFn: func(ctx context.Context, code string) (*auth.IssuedSession, error) {
					called = true
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Callback(w, callbackRequest(tt.query))

			resp := w.Result()
			want := "/auth/error?error=" + tt.wantCode
			if location := resp.Header.Get("Location"); location != want {
				t.Errorf("Location = %q, want %q", location, want)
			}
			if findCookie(resp, middleware.SessionCookieName) != nil {
				t.Error("session cookie must not be set on rejection")
			}
			if tt.err == nil && called {
				t.Error("HandleCallback should not be called")
			}
		})
	}
}

func TestAuthHandler_Callback_NoStateCookie_Rejected(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Callback(w, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil))

	if location := w.Result().Header.Get("Location"); location != "/auth/error?error=Default" {
		t.Errorf("Location = %q", location)
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	t.Run("with session redirects to base url", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/signin", nil)
		req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{Email: "alice@example.com"}))
		w := httptest.NewRecorder()
		h.SignIn(w, req)

		if location := w.Result().Header.Get("Location"); location != "http://localhost:3000" {
			t.Errorf("Location = %q", location)
		}
	})

	t.Run("without session redirects to login", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SignIn(w, httptest.NewRequest(http.MethodGet, "/auth/signin", nil))

		if location := w.Result().Header.Get("Location"); location != "/auth/google/login" {
			t.Errorf("Location = %q", location)
		}
	})
}

func TestAuthHandler_Error(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantCode   string
	}{
		{"error=AccessDenied", http.StatusForbidden, "AccessDenied"},
		{"error=Configuration", http.StatusInternalServerError, "Configuration"},
		{"error=Unknown", http.StatusBadRequest, "Default"},
		{"", http.StatusBadRequest, "Default"},
	}

	h := newTestAuthHandler(&mockAuthService{})
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Error(w, httptest.NewRequest(http.MethodGet, "/auth/error?"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_SignOut_ClearsCookieAndRedirects(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{Email: "alice@example.com"}))
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("expected session cookie to be cleared")
	}
	if cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Errorf("cookie not cleared: %+v", cookie)
	}
}

func TestAuthHandler_Session(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})
	expires := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	t.Run("enriched session includes id and role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{
			Email: "alice@example.com", Name: "Alice", ID: "u-1", Role: model.RoleAdmin, ExpiresAt: expires,
		}))
		w := httptest.NewRecorder()
		h.Session(w, req)

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		user := body["user"].(map[string]any)
		if user["id"] != "u-1" || user["role"] != "admin" || user["email"] != "alice@example.com" {
			t.Errorf("user = %v", user)
		}
		if body["expires"] != "2026-11-01T00:00:00Z" {
			t.Errorf("expires = %v", body["expires"])
		}
	})

	t.Run("unenriched session omits id and role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{
			Email: "bob@example.com", ExpiresAt: expires,
		}))
		w := httptest.NewRecorder()
		h.Session(w, req)

		var body map[string]any
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		user := body["user"].(map[string]any)
		if _, ok := user["id"]; ok {
			t.Error("id should be omitted")
		}
		if _, ok := user["role"]; ok {
			t.Error("role should be omitted")
		}
	})

	t.Run("no session returns 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Session(w, httptest.NewRequest(http.MethodGet, "/auth/session", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
