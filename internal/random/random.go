// Package random provides an injectable RNG so probabilistic draws (gateway
// outcome, fraud rule 1, notification success) are substitutable in tests.
package random

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/fx"
)

// Rand is the subset of math/rand the services draw from.
type Rand interface {
	Intn(n int) int
}

// Module provides a time-seeded locked RNG.
var Module = fx.Provide(func() Rand {
	return NewLocked(time.Now().UnixNano())
})

type locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked returns a seeded Rand safe for concurrent use.
func NewLocked(seed int64) Rand {
	return &locked{rng: rand.New(rand.NewSource(seed))}
}

func (l *locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}
