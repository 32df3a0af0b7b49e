package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTerminalAuth_WithValidToken(t *testing.T) {
	m := NewTerminalAuth("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := VenueFromContext(r.Context())
		if !ok {
			t.Fatalf("venue id not in context")
		}
		if id != "venue.42" {
			t.Fatalf("venue id from context = %q, want venue.42", id)
		}
	})

	r := httptest.NewRequest(http.MethodPost, "/redemption/verify", nil)
	r.Header.Set(TerminalTokenHeader, m.Sign("venue.42"))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestTerminalAuth_Rejects(t *testing.T) {
	m := NewTerminalAuth("test-secret")
	other := NewTerminalAuth("other-secret")

	tokens := map[string]string{
		"missing":        "",
		"no signature":   "venue-1",
		"empty venue":    "." + m.Sign("")[1:],
		"bad hex":        "venue-1.zz",
		"foreign secret": other.Sign("venue-1"),
		"tampered venue": "venue-2" + m.Sign("venue-1")[len("venue-1"):],
	}

	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/redemption/verify", nil)
			if token != "" {
				r.Header.Set(TerminalTokenHeader, token)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestTerminalAuth_DisabledWithoutSecret(t *testing.T) {
	m := NewTerminalAuth("")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		if _, ok := VenueFromContext(r.Context()); ok {
			t.Fatalf("venue must not be set when auth is disabled")
		}
	})

	r := httptest.NewRequest(http.MethodPost, "/redemption/verify", nil)
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}
