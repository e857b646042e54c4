package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"todoapi/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipRequestDecompress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GzipRequestDecompress())
	router.POST("/todos", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"body": string(body)})
	})

	tests := []struct {
		name            string
		body            func(t *testing.T) io.Reader
		contentEncoding string
		want            struct {
			statusCode int
			body       string
		}
	}{
		{
			name:            "plain body",
			body:            func(t *testing.T) io.Reader { return strings.NewReader(`title=milk`) },
			contentEncoding: "",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusOK, body: "title=milk"},
		},
		{
			name:            "gzip body",
			body:            func(t *testing.T) io.Reader { return gzipBytes(t, `title=milk`) },
			contentEncoding: "gzip",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusOK, body: "title=milk"},
		},
		{
			name:            "declared gzip but not gzip",
			body:            func(t *testing.T) io.Reader { return strings.NewReader("plainly not gzip") },
			contentEncoding: "gzip",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusBadRequest, body: "invalid gzip request body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/todos", tt.body(t))
			if tt.contentEncoding != "" {
				req.Header.Set("Content-Encoding", tt.contentEncoding)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.want.body)
		})
	}
}

func TestGzipResponseCompress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	payload := strings.Repeat("compressible todo title ", 100)

	tests := []struct {
		name           string
		content        string
		acceptEncoding string
		want           struct {
			contentEncoding string
		}
	}{
		{
			name:           "large body with gzip accepted",
			content:        payload,
			acceptEncoding: "gzip, deflate",
			want:           struct{ contentEncoding string }{contentEncoding: "gzip"},
		},
		{
			name:           "small body stays plain",
			content:        "short",
			acceptEncoding: "gzip",
			want:           struct{ contentEncoding string }{},
		},
		{
			name:           "gzip not accepted",
			content:        payload,
			acceptEncoding: "deflate",
			want:           struct{ contentEncoding string }{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(GzipResponseCompress())
			router.GET("/todos", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"title": tt.content})
			})

			req := httptest.NewRequest(http.MethodGet, "/todos", nil)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want.contentEncoding, w.Header().Get("Content-Encoding"))

			body := w.Body.Bytes()
			if tt.want.contentEncoding == "gzip" {
				gr, err := gzip.NewReader(bytes.NewReader(body))
				require.NoError(t, err)
				body, err = io.ReadAll(gr)
				require.NoError(t, err)
			}
			assert.Contains(t, string(body), tt.content)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, logger.GetRequestID(c.Request.Context()))
	})

	t.Run("assigns an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps an inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", w.Body.String())
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "scheme is case-insensitive", header: "bearer abc", want: "abc"},
		{name: "basic scheme rejected", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "header without scheme", header: "abc", want: ""},
		{name: "cookie fallback", cookie: "from-cookie", want: "from-cookie"},
		{name: "header wins over cookie", header: "Bearer from-header", cookie: "from-cookie", want: "from-header"},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(w)
			req := httptest.NewRequest(http.MethodGet, "/todos", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}
			ctx.Request = req

			assert.Equal(t, tt.want, bearerToken(ctx))
		})
	}
}
