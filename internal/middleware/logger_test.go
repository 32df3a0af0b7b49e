package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	r := httptest.NewRequest(http.MethodGet, "/redemption/users/u1/transactions", nil)
	Logger(logger)(next).ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["size"] != int64(len("short and stout")) {
		t.Fatalf("size field = %v", fields["size"])
	}
	if fields["method"] != http.MethodGet {
		t.Fatalf("method field = %v", fields["method"])
	}
}
