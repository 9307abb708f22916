package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDReusesSaneHeader(t *testing.T) {
	cases := []struct {
		name   string
		header string
		reused bool
	}{
		{"empty", "", false},
		{"printable", "req-42", true},
		{"whitespace", "req 42", false},
		{"newline", "req\n42", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header["X-Request-Id"] = []string{tc.header}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Body.String()
			if got == "" {
				t.Fatal("no request id assigned")
			}
			if (got == tc.header) != tc.reused {
				t.Errorf("request id = %q, header %q, reused want %v", got, tc.header, tc.reused)
			}
			if w.Header().Get("X-Request-ID") != got {
				t.Errorf("response header = %q, want %q", w.Header().Get("X-Request-ID"), got)
			}
		})
	}
}

func TestFailMarksRetryableCodes(t *testing.T) {
	cases := []struct {
		code      ErrCode
		retryable bool
	}{
		{ErrSessionUnavailable, true},
		{ErrSubmitInProgress, true},
		{ErrSubmissionFailed, false},
		{ErrAlreadySubmitted, false},
		{ErrValidation, false},
	}

	for _, tc := range cases {
		r := gin.New()
		r.Use(RequestIDMiddleware())
		r.GET("/", func(c *gin.Context) { Fail(c, http.StatusConflict, tc.code) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		var body Response
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.code, err)
		}
		if body.Error == nil || body.Error.Code != tc.code {
			t.Fatalf("%s: error body = %+v", tc.code, body.Error)
		}
		if body.Error.Retryable != tc.retryable {
			t.Errorf("%s: retryable = %v, want %v", tc.code, body.Error.Retryable, tc.retryable)
		}
		if body.Error.Message == "" {
			t.Errorf("%s: empty message", tc.code)
		}
		if body.Metadata.RequestID == "" {
			t.Errorf("%s: missing request id", tc.code)
		}
	}
}
