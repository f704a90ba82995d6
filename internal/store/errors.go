package store

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMissingID        = errors.New("document id is required")
	ErrInvalidID        = errors.New("document id must be a string")
	ErrInvalidOperator  = errors.New("invalid filter operator")
	ErrInvalidDirection = errors.New("invalid order direction")
)

// IsNotFound reports a missing document, whether the backend said so or we did.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}

// IsInvalid reports errors caused by the caller's arguments.
func IsInvalid(err error) bool {
	switch {
	case errors.Is(err, ErrMissingID),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidOperator),
		errors.Is(err, ErrInvalidDirection):
		return true
	}
	return status.Code(err) == codes.InvalidArgument
}
