// Package idgen generates run and decision identifiers. Callers treat ids as
// opaque strings.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// New returns a random UUID.
func New() string { return uuid.New().String() }

// Sequence returns a generator producing prefix1, prefix2 and so on. It is
// safe for concurrent use.
func Sequence(prefix string) func() string {
	var counter atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(counter.Add(1), 10)
	}
}
