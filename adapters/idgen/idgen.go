// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/crmgate/ports"
	"github.com/google/uuid"
)

// UUID generates UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates deterministic UUID-shaped ids (for testing). The
// counter lands in the last UUID group so the output still passes relation
// id syntax checks.
type Sequential struct {
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential() *Sequential {
	return &Sequential{}
}

// New generates the next sequential id.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	suffix := strconv.FormatUint(n, 10)
	const block = "000000000000"
	return "00000000-0000-4000-8000-" + block[:len(block)-len(suffix)] + suffix
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)
