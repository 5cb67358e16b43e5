package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRequireAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		hash   string
		header string
		want   int
	}{
		{"valid token", string(hash), "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", string(hash), "bearer s3cret", http.StatusNoContent},
		{"wrong token", string(hash), "Bearer nope", http.StatusForbidden},
		{"missing header", string(hash), "", http.StatusUnauthorized},
		{"basic auth", string(hash), "Basic czNjcmV0", http.StatusUnauthorized},
		{"disabled", "", "Bearer s3cret", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdminToken(tt.hash)(ok)
			req := httptest.NewRequest(http.MethodPost, "/api/admin/settle", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("abc")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("abc")) != nil {
		t.Error("hash does not match token")
	}
}
