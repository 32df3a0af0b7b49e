package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// terminalEcho отвечает на запрос терминала: код из тела возвращается в ответе,
// пустой код даёт ошибку 400 в формате API.
func terminalEcho(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string `json:"code"`
		BillAmount string `json:"billAmount"`
	}
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request","message":"invalid request"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": req.Code, "billAmount": req.BillAmount})
}

func gzipBytes(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		bodyContains    string
	}

	tests := []struct {
		name           string
		body           string
		gzipBody       bool
		acceptEncoding string
		want           want
	}{
		{
			name:           "compressed finalize request and response",
			body:           `{"code":"0123456789ABCDEFGHJKMNPQRSX","billAmount":"300.00"}`,
			gzipBody:       true,
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				bodyContains:    `"billAmount":"300.00"`,
			},
		},
		{
			name:           "compressed request, plain response",
			body:           `{"code":"0123456789ABCDEFGHJKMNPQRSX","billAmount":"45.10"}`,
			gzipBody:       true,
			acceptEncoding: "",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				bodyContains:    `"billAmount":"45.10"`,
			},
		},
		{
			name:           "plain request, compressed response",
			body:           `{"code":"0123456789ABCDEFGHJKMNPQRSX","billAmount":"12.00"}`,
			acceptEncoding: "gzip, deflate",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				bodyContains:    `"code":"0123456789ABCDEFGHJKMNPQRSX"`,
			},
		},
		{
			name:           "error response is compressed with its status",
			body:           `{"billAmount":"12.00"}`,
			gzipBody:       true,
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusBadRequest,
				contentEncoding: "gzip",
				bodyContains:    `"error":"invalid_request"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.gzipBody {
				body = bytes.NewReader(gzipBytes(t, tt.body))
			}

			req := httptest.NewRequest(http.MethodPost, "/redemption/finalize", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.gzipBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(terminalEcho)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.want.statusCode, res.StatusCode)
			assert.Equal(t, tt.want.contentEncoding, res.Header.Get("Content-Encoding"))
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Contains(t, readBody(t, res), tt.want.bodyContains)
		})
	}
}

func TestGzipMiddleware_MalformedBody(t *testing.T) {
	called := false
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/redemption/verify", strings.NewReader(`{"code":"not gzip"}`))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called, "handler must not see an undecodable body")
}
