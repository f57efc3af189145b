package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

const secret = "test-secret-test-secret-test-secret"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("CheckPassword(valid) = %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Errorf("CheckPassword(wrong) = %v, want ErrInvalidCredentials", err)
	}
	if _, err := HashPassword("short"); !errors.Is(err, core.ErrWeakPassword) {
		t.Errorf("HashPassword(short) = %v, want ErrWeakPassword", err)
	}
}

func TestIssuerRoundTrip(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	id := uuid.New()

	token, exp, err := iss.Issue(id, "anna@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry too early: %v", exp)
	}

	got, claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id || claims.Email != "anna@example.com" {
		t.Errorf("Parse = %v, %+v", got, claims)
	}
}

func TestIssuerRejects(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	token, _, _ := iss.Issue(uuid.New(), "a@example.com")

	other := NewIssuer("another-secret-another-secret-xx", time.Hour)
	if _, _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret: err = %v", err)
	}

	expired := NewIssuer(secret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, _, err := expired.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v", err)
	}

	if _, _, err := iss.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	id := uuid.New()
	token, _, _ := iss.Issue(id, "a@example.com")

	var seen uuid.UUID
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = core.OwnerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNoContent && seen != id {
				t.Errorf("owner = %v, want %v", seen, id)
			}
		})
	}
}
