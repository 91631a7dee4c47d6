package util

import (
	"github.com/oklog/ulid/v2"
)

// NewULID generates a new, lexically time-ordered ULID string.
func NewULID() string {
	return ulid.Make().String()
}
