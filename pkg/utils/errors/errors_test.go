package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeAndParseCode(t *testing.T) {
	code := MakeCode(ServiceDocQA, CategoryConflict, 1)
	assert.Equal(t, 2105001, code)

	s, c, seq := ParseCode(code)
	assert.Equal(t, ServiceDocQA, s)
	assert.Equal(t, CategoryConflict, c)
	assert.Equal(t, 1, seq)

	assert.True(t, IsClientError(code))
	assert.False(t, IsServerError(code))
	assert.True(t, IsServerError(ErrInvariantViolation.Code))
}

func TestDocQACodes_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Errno
		http int
		grpc codes.Code
	}{
		{"empty input", ErrEmptyInput, http.StatusBadRequest, codes.InvalidArgument},
		{"extraction", ErrExtraction, http.StatusBadRequest, codes.InvalidArgument},
		{"unsupported", ErrUnsupportedDocument, http.StatusBadRequest, codes.InvalidArgument},
		{"index not found", ErrIndexNotFound, http.StatusConflict, codes.FailedPrecondition},
		{"rate limited", ErrProviderRateLimited, http.StatusTooManyRequests, codes.ResourceExhausted},
		{"provider failed", ErrProviderFailed, http.StatusBadGateway, codes.Unavailable},
		{"invariant", ErrInvariantViolation, http.StatusInternalServerError, codes.Internal},
		{"client closed", ErrClientClosed, StatusClientClosedRequest, codes.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.http, tt.err.HTTPStatus())
			assert.Equal(t, tt.grpc, tt.err.GRPCStatus())

			registered, ok := Lookup(tt.err.Code)
			require.True(t, ok)
			assert.Same(t, tt.err, registered)
		})
	}
}

func TestErrno_WithCauseKeepsIdentity(t *testing.T) {
	wrapped := ErrExtraction.WithCause(io.ErrUnexpectedEOF)

	assert.True(t, Is(wrapped, ErrExtraction))
	assert.True(t, Is(wrapped, io.ErrUnexpectedEOF))
	assert.False(t, Is(wrapped, ErrEmptyInput))
	assert.Contains(t, wrapped.Error(), "unexpected EOF")

	// the predefined value must not be mutated
	assert.Nil(t, ErrExtraction.Unwrap())
}

func TestErrno_WithMessage(t *testing.T) {
	e := ErrEmptyInput.WithMessagef("%s must not be blank", "question")

	assert.Equal(t, "question must not be blank", e.MessageEN)
	assert.Equal(t, "Input must not be empty", ErrEmptyInput.MessageEN)
	assert.Equal(t, ErrEmptyInput.Code, e.Code)
	assert.Equal(t, "输入内容不能为空", e.Message("zh-CN"))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	e := FromError(fmt.Errorf("ingest: %w", ErrIndexNotFound))
	assert.Equal(t, ErrIndexNotFound.Code, e.Code)

	plain := FromError(io.EOF)
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.True(t, Is(plain, io.EOF))

	assert.Equal(t, -1, GetCode(io.EOF))
	assert.Equal(t, ErrProviderFailed.Code, GetCode(ErrProviderFailed))
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewConflictErr(ServiceDocQA, 1, "dup", "")
	})
}

func TestErrno_FormatVerbose(t *testing.T) {
	s := fmt.Sprintf("%+v", ErrProviderRateLimited.WithCause(io.EOF))
	assert.Contains(t, s, "HTTP 429")
	assert.Contains(t, s, "caused by: EOF")
}
