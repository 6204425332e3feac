package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenAuthenticator is satisfied by *auth.Authenticator.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (auth.Result, error)
}

// AuthMiddleware authenticates the bearer token, stores the identity in the
// gin context and always echoes the token the client should keep using in
// the x-auth-token headers.
func AuthMiddleware(a TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, common.ErrorUnauthorized)
			return
		}

		res, err := a.Authenticate(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, err)
			return
		}

		setTokenHeaders(c, res.Token)
		c.Set(identityKey, res.Identity)
		c.Next()
	}
}

func setTokenHeaders(c *gin.Context, t token.Response) {
	c.Header(common.AuthTokenHeader, t.Token)
	c.Header(common.AuthTokenExpiresAtHeader, t.ExpiresAt.UTC().Format(time.RFC3339))
	c.Header(common.AuthTokenRefreshAtHeader, t.RefreshAt.UTC().Format(time.RFC3339))
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// IdentityFrom returns the identity AuthMiddleware stored in c.
func IdentityFrom(c *gin.Context) (token.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return token.Identity{}, false
	}
	id, ok := v.(token.Identity)
	return id, ok
}

// RequestLogger logs one line per request through the service logger.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Err)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error(c.Request.Context(), "request failed", args...)
		case status >= 400:
			log.Info(c.Request.Context(), "request rejected", args...)
		default:
			log.Debug(c.Request.Context(), "request served", args...)
		}
	}
}
