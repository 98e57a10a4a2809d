package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/identity"
)

type stubParser struct {
	principal identity.Principal
	token     string
}

func (s stubParser) Parse(token string) (identity.Principal, error) {
	if token != s.token {
		return identity.Principal{}, errors.New("bad token")
	}
	return s.principal, nil
}

func TestRequireAuthMissingHeader(t *testing.T) {
	mw := RequireAuth(stubParser{token: "good"})
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	mw := RequireAuth(stubParser{token: "good"})
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireAuthStoresPrincipal(t *testing.T) {
	want := identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}
	mw := RequireAuth(stubParser{token: "good", principal: want})
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, ok := identity.FromContext(r.Context())
		if !ok || got != want {
			t.Fatalf("expected principal in context, got %#v", got)
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected next handler to run")
	}
}

func TestRequireAuthQueryTokenOnlyForWebsocket(t *testing.T) {
	mw := RequireAuth(stubParser{token: "good", principal: identity.Principal{UserID: uuid.New(), Role: identity.RoleDoctor}})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/ws/appointments/1?access_token=good", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("plain request must not accept query token, got %d", rec.Code)
	}

	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected websocket upgrade to pass, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(identity.RoleDoctor)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name string
		p    *identity.Principal
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"patient", &identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}, http.StatusForbidden},
		{"doctor", &identity.Principal{UserID: uuid.New(), Role: identity.RoleDoctor}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/doctors/profile", nil)
			if tc.p != nil {
				req = req.WithContext(identity.WithPrincipal(req.Context(), *tc.p))
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
