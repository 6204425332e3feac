package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	msgUnauthorized       = "Unauthorized, please try to login again"
	msgInvalidCredentials = "Invalid email or password"
	msgAlreadyExists      = "User already exists"
	msgInternal           = "Internal server error"
	msgUnavailable        = "Service unavailable"
	msgBadRequest         = "Invalid request"
)

// statusFor maps a service error to the HTTP status and the message shown
// to clients. Details never leave the server.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrInvalidTokenFormat),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, msgAlreadyExists
	case errors.Is(err, common.ErrEncoding),
		errors.Is(err, common.ErrStoredTokenCorrupt),
		errors.Is(err, common.ErrorInternal):
		return http.StatusInternalServerError, msgInternal
	default:
		return http.StatusServiceUnavailable, msgUnavailable
	}
}

func abortWithError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
