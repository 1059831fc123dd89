// Package lockpool provides a small fixed set of stripe locks keyed by an
// arbitrary string, used wherever concurrent writers must be serialized per
// logical key (e.g. the same (uuid, part) artifact) without paying for one
// mutex per key.
package lockpool

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const stripes = 256

// Pool is a striped set of mutexes. The zero value is not usable; use New.
type Pool struct {
	locks [stripes]sync.Mutex
}

func New() *Pool {
	return &Pool{}
}

func (p *Pool) stripe(key string) *sync.Mutex {
	h := xxhash.Sum64String(key)
	return &p.locks[h%stripes]
}

// Lock acquires the stripe lock for key.
func (p *Pool) Lock(key string) { p.stripe(key).Lock() }

// Unlock releases the stripe lock for key.
func (p *Pool) Unlock(key string) { p.stripe(key).Unlock() }

// With runs fn while holding the stripe lock for key.
func (p *Pool) With(key string, fn func() error) error {
	p.Lock(key)
	defer p.Unlock(key)
	return fn()
}
