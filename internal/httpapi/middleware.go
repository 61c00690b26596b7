package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/auth"
)

const (
	ctxUserID = "uid"
	ctxAdmin  = "admin"
)

func authenticate(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			fail(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}
		claims, err := v.Parse(token)
		switch {
		case errors.Is(err, auth.ErrEmailNotVerified):
			fail(c, http.StatusUnauthorized, "email_not_verified", "email not verified")
			return
		case err != nil:
			fail(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		c.Set(ctxUserID, claims.UserID())
		c.Set(ctxAdmin, claims.Admin)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxAdmin) {
			fail(c, http.StatusForbidden, "forbidden", "admin only")
			return
		}
		c.Next()
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(started)).
			Str("user_id", c.GetString(ctxUserID)).
			Msg("http request")
	}
}
