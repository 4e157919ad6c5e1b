package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authService() *JWTService {
	return NewJWTService(JWTConfig{
		SigningKey:  "test-signing-key",
		TokenExpiry: time.Hour,
		Issuer:      "mailcast",
		Audience:    "mailcast-api",
	})
}

func protectedHandler(t *testing.T, wantSubject string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := SubjectFromContext(r.Context()); got != wantSubject {
			t.Errorf("subject in context = %q, want %q", got, wantSubject)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestBearerAuthValidToken(t *testing.T) {
	s := authService()
	token, err := s.GenerateToken("operator-1", "ops@example.com")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	BearerAuth(s)(protectedHandler(t, "operator-1")).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestBearerAuthRejections(t *testing.T) {
	s := authService()

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			called := false
			BearerAuth(s)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			})).ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if called {
				t.Error("handler reached without valid token")
			}
		})
	}
}

func TestSubjectFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SubjectFromContext(req.Context()); got != "" {
		t.Errorf("SubjectFromContext = %q, want empty", got)
	}
}
