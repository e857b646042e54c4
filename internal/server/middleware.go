package server

import (
	"bytes"
	"compress/gzip"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
	"todoapi/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	TokenCookie     = "jwt_token"

	currentUserKey = "current_user"
)

// RequestLogger tags each request with an id (reusing a sane inbound
// X-Request-ID) and logs one line when the handler chain returns.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		ctx.Writer.Header().Set(RequestIDHeader, requestID)
		ctx.Request = ctx.Request.WithContext(logger.ContextWithRequestID(ctx.Request.Context(), requestID))

		ctx.Next()

		args := []any{
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", ctx.ClientIP(),
		}
		if len(ctx.Errors) > 0 {
			args = append(args, "errors", ctx.Errors.String())
		}
		switch status := ctx.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx.Request.Context(), "request", args...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx.Request.Context(), "request", args...)
		default:
			logger.InfoContext(ctx.Request.Context(), "request", args...)
		}
	}
}

// bearerToken reads the Authorization header first, then the token cookie.
func bearerToken(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := ctx.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// authRequired resolves the caller to an existing, active user.
func (api *TodoAPI) authRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			ctx.Header("WWW-Authenticate", "Bearer")
			abortWithError(ctx, errors.ErrUnauthorized)
			return
		}
		claims, err := api.tokens.Validate(token)
		if err != nil {
			ctx.Header("WWW-Authenticate", "Bearer")
			abortWithError(ctx, errors.ErrUnauthorized)
			return
		}
		user, err := api.users.GetUserByID(ctx.Request.Context(), claims.UserID)
		if err != nil {
			if stderrors.Is(err, errors.ErrUserNotFound) {
				err = errors.ErrUnauthorized
			}
			abortWithError(ctx, err)
			return
		}
		if !user.IsActive {
			abortWithError(ctx, errors.ErrInactiveUser)
			return
		}
		ctx.Set(currentUserKey, user)
		ctx.Next()
	}
}

func currentUser(ctx *gin.Context) *models.User {
	v, ok := ctx.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// gzipBody closes both the decompressor and the original request body.
type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (b *gzipBody) Close() error {
	zerr := b.Reader.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}

// GzipRequestDecompress transparently inflates gzip encoded request bodies.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(strings.ToLower(ctx.GetHeader("Content-Encoding")), "gzip") {
			ctx.Next()
			return
		}
		zr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			abortWithError(ctx, errors.ErrInvalidGzipRequest)
			return
		}
		ctx.Request.Body = &gzipBody{Reader: zr, raw: ctx.Request.Body}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1
		ctx.Next()
	}
}

// minCompressSize is the smallest body worth compressing.
const minCompressSize = 1024

var compressibleTypes = []string{
	"application/json",
	"application/xml",
	"application/javascript",
	"text/csv",
	"text/html",
	"text/css",
	"text/plain",
	"text/xml",
	"text/javascript",
}

func compressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func addVary(h http.Header, value string) {
	vary := h.Get("Vary")
	switch {
	case vary == "":
		h.Set("Vary", value)
	case !strings.Contains(vary, value):
		h.Set("Vary", vary+", "+value)
	}
}

// gzipResponseWriter holds the body back until it is known to be large and
// compressible, then switches to gzip for the rest of the response.
type gzipResponseWriter struct {
	gin.ResponseWriter
	zw      *gzip.Writer
	pending bytes.Buffer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if w.zw != nil {
		n, err := w.zw.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}

	w.pending.Write(data)
	if w.pending.Len() >= minCompressSize && w.shouldCompress() {
		h := w.ResponseWriter.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		w.zw = gzip.NewWriter(w.ResponseWriter)
		if _, err := w.zw.Write(w.pending.Bytes()); err != nil {
			return 0, errors.ErrGzipCompressionFailed
		}
		w.pending.Reset()
	}
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *gzipResponseWriter) shouldCompress() bool {
	switch status := w.ResponseWriter.Status(); {
	case status == http.StatusNoContent, status == http.StatusNotModified, status == http.StatusPartialContent:
		return false
	case status >= http.StatusMultipleChoices && status < http.StatusBadRequest:
		return false
	}
	h := w.ResponseWriter.Header()
	return h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type"))
}

// finish flushes whatever is buffered, compressed or not.
func (w *gzipResponseWriter) finish() error {
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			return errors.ErrGzipCompressionFailed
		}
		return nil
	}
	if w.pending.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.pending.Bytes())
	w.pending.Reset()
	return err
}

func (w *gzipResponseWriter) Flush() {
	if w.zw != nil {
		_ = w.zw.Flush()
	} else if w.pending.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.pending.Bytes())
		w.pending.Reset()
	}
	w.ResponseWriter.Flush()
}

// GzipResponseCompress gzips large text responses for clients that accept it.
func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead || !strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}
		addVary(ctx.Writer.Header(), "Accept-Encoding")

		gw := &gzipResponseWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = gw
		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(err)
		}
	}
}
