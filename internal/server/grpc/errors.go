package grpc

import (
	"errors"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgUnauthorized       = "Unauthorized, please try to login again"
	msgInvalidCredentials = "Invalid email or password"
	msgAlreadyExists      = "User already exists"
	msgInternal           = "Internal server error"
	msgUnavailable        = "Service unavailable"
)

// statusError converts a service error into a gRPC status with a generic
// message.
func statusError(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidTokenFormat),
		errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, msgUnauthorized)
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.Unauthenticated, msgInvalidCredentials)
	case errors.Is(err, common.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, msgAlreadyExists)
	case errors.Is(err, common.ErrEncoding),
		errors.Is(err, common.ErrStoredTokenCorrupt),
		errors.Is(err, common.ErrorInternal):
		return status.Error(codes.Internal, msgInternal)
	default:
		return status.Error(codes.Unavailable, msgUnavailable)
	}
}
