package api

import (
	"context"
	"errors"

	"github.com/solatis/tradepromo/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusError maps a service error to a gRPC status. Broken rule sets and
// bad subjects are InvalidArgument; rule source and database failures are
// Unavailable. Auth errors are mapped by the auth interceptor.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case types.IsConfigurationError(err),
		errors.Is(err, types.ErrTypeMismatch),
		errors.Is(err, types.ErrDocumentTooLarge):
		code = codes.InvalidArgument
	default:
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}
