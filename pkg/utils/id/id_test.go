package id

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	ids := make([]string, 100)
	seen := make(map[string]bool)
	for i := range ids {
		ids[i] = NewULID()
		if len(ids[i]) != 26 {
			t.Fatalf("expected ULID length 26, got %d", len(ids[i]))
		}
		if seen[ids[i]] {
			t.Fatalf("duplicate ID: %s", ids[i])
		}
		seen[ids[i]] = true
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("expected ULIDs to sort in generation order")
	}
}

func TestTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Time(NewULID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Before(before) {
		t.Errorf("timestamp %v is before %v", ts, before)
	}

	if _, err := Time("not-a-ulid"); !errors.Is(err, ErrInvalidULID) {
		t.Errorf("expected ErrInvalidULID, got %v", err)
	}
	if IsValidULID("not-a-ulid") {
		t.Error("expected invalid ULID")
	}
}
