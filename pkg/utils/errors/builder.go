package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

func validateCodeParams(service, category, sequence int) {
	if service < 0 || service > 99 {
		panic(fmt.Sprintf("errors: service code must be 0-99, got %d", service))
	}
	if category < 0 || category > 99 {
		panic(fmt.Sprintf("errors: category code must be 0-99, got %d", category))
	}
	if sequence < 0 || sequence > 999 {
		panic(fmt.Sprintf("errors: sequence must be 0-999, got %d", sequence))
	}
}

// NewError creates and registers a new Errno.
// Panics if the code is already registered or messageEN is empty.
func NewError(service, category, sequence int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	validateCodeParams(service, category, sequence)
	if messageEN == "" {
		panic("errors: english message is required")
	}
	return Register(New(MakeCode(service, category, sequence), httpStatus, grpcCode, messageEN, messageZH))
}

// NewRequestErr creates and registers a request/validation error (HTTP 400).
func NewRequestErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryRequest, sequence, http.StatusBadRequest, codes.InvalidArgument, en, zh)
}

// NewConflictErr creates and registers a state conflict error (HTTP 409).
func NewConflictErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryConflict, sequence, http.StatusConflict, codes.FailedPrecondition, en, zh)
}

// NewRateLimitErr creates and registers a rate limit error (HTTP 429).
func NewRateLimitErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryRateLimit, sequence, http.StatusTooManyRequests, codes.ResourceExhausted, en, zh)
}

// NewInternalErr creates and registers an internal error (HTTP 500).
func NewInternalErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryInternal, sequence, http.StatusInternalServerError, codes.Internal, en, zh)
}

// NewNetworkErr creates and registers an upstream failure (HTTP 502).
func NewNetworkErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryNetwork, sequence, http.StatusBadGateway, codes.Unavailable, en, zh)
}

// NewTimeoutErr creates and registers a timeout error (HTTP 504).
func NewTimeoutErr(service, sequence int, en, zh string) *Errno {
	return NewError(service, CategoryTimeout, sequence, http.StatusGatewayTimeout, codes.DeadlineExceeded, en, zh)
}
