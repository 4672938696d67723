package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/cache"
)

const cacheableKey = "docrag.cacheable"

// markCacheable flags the current response for the response cache.
func markCacheable(c *gin.Context) {
	c.Set(cacheableKey, true)
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// responseCache serves GET responses from c keyed by the raw request URL.
// Only 200 responses that a handler marked cacheable are stored.
func responseCache(c cache.Cache, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		key := cache.StatusKey(ctx.Request.URL.RequestURI())
		if body, ok, err := c.Get(ctx.Request.Context(), key); err == nil && ok {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
			ctx.Abort()
			return
		} else if err != nil {
			logger.Warn("response cache lookup failed", "err", err)
		}

		w := &captureWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = w
		ctx.Next()

		if ctx.Writer.Status() != http.StatusOK || !ctx.GetBool(cacheableKey) {
			return
		}
		if err := c.Set(ctx.Request.Context(), key, w.body.Bytes(), ttl); err != nil {
			logger.Warn("response cache store failed", "err", err)
		}
	}
}
