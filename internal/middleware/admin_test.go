package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubVerifier struct {
	login    string
	password string
}

func (v *stubVerifier) Verify(login, password string) bool {
	return login == v.login && password == v.password
}

func TestAdminAuth_ValidCredentials(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.SetBasicAuth("admin", "admin123")

	w := httptest.NewRecorder()
	AdminAuth(&stubVerifier{login: "admin", password: "admin123"})(next).ServeHTTP(w, r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAdminAuth_InvalidCredentials(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.SetBasicAuth("admin", "wrong")

	w := httptest.NewRecorder()
	AdminAuth(&stubVerifier{login: "admin", password: "admin123"})(next).ServeHTTP(w, r)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/admin", nil)

	w := httptest.NewRecorder()
	AdminAuth(&stubVerifier{login: "admin", password: "admin123"})(next).ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	if res.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("WWW-Authenticate header must be set")
	}
}
