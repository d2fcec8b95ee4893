package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindOther is any failure that is not a quota/rate limit.
	KindOther ErrorKind = iota
	// KindRateLimited means the provider rejected the call for quota or rate reasons.
	KindRateLimited
)

func (k ErrorKind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "other"
}

// ProviderError is the error every provider returns for a failed remote call.
type ProviderError struct {
	Provider   string
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (%s, status %d): %v", e.Provider, e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// rateLimitMarkers 出现在错误信息中即视为配额/限流
var rateLimitMarkers = []string{
	"429",
	"resource_exhausted",
	"quota",
	"rate limit",
	"rate_limit",
	"too many requests",
}

// WrapError classifies err and wraps it as a *ProviderError.
// statusCode may be 0 when the transport did not expose one; in that case the
// status is taken from an *httpclient.StatusError in the chain, if any.
// Context cancellation is returned unwrapped so callers see ctx.Err().
func WrapError(provider, op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	if statusCode == 0 {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			statusCode = se.StatusCode
		}
	}

	return &ProviderError{
		Provider:   provider,
		Op:         op,
		Kind:       classify(statusCode, err),
		StatusCode: statusCode,
		Err:        err,
	}
}

func classify(statusCode int, err error) ErrorKind {
	if statusCode == http.StatusTooManyRequests {
		return KindRateLimited
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return KindRateLimited
		}
	}
	return KindOther
}

// IsRateLimited reports whether err is a rate-limited provider failure.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}
