package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/dipledger-backend/internal/domain"
)

// mapError converts domain errors to gRPC status errors.
// Integrity rejections are FailedPrecondition; write failures on the
// settlement path are Unavailable so clients know a retry is safe, unless the
// history record could not be rolled back.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrOrphanedHistory):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrPortfolioClosed), errors.Is(err, domain.ErrNegativeHolding):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrHistoryWrite), errors.Is(err, domain.ErrCloseWrite):
		return status.Error(codes.Unavailable, err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Error(codes.Internal, err.Error())
}
