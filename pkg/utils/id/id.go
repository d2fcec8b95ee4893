// Package id provides ULID generation for index generations and request IDs.
//
// Usage:
//
//	gen := id.NewULID() // e.g., "01ARZ3NDEKTSV4RRFFQ69G5FAV"
package id

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a new monotonic ULID string.
// IDs generated within the same millisecond sort in generation order.
func NewULID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsValidULID reports whether s is a well-formed ULID.
func IsValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time returns the timestamp embedded in a ULID.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidULID, err)
	}
	return ulid.Time(u.Time()), nil
}
