// Package nonce tracks consumed (payer, nonce) pairs so that an EIP-3009
// authorization can be settled at most once.
package nonce

import (
	"context"
	"strings"
	"sync"
)

// Guard is a replay-protection set keyed by Key(from, nonce).
//
// A key is either absent, reserved by a settlement that is broadcasting, or
// used. Only used keys count for IsUsed.
type Guard interface {
	// IsUsed reports whether key has been marked used.
	IsUsed(ctx context.Context, key string) (bool, error)
	// MarkUsed marks key used, converting a reservation. Marking an already
	// used key is not an error.
	MarkUsed(ctx context.Context, key string) error
	// MarkIfAbsent atomically marks an absent key used and reports whether
	// this call inserted it. Concurrent callers for the same key see exactly
	// one true.
	MarkIfAbsent(ctx context.Context, key string) (bool, error)
	// Reserve atomically claims an absent key for a pending broadcast and
	// reports whether this call claimed it. A reserved or used key is not
	// claimed again.
	Reserve(ctx context.Context, key string) (bool, error)
	// Release drops a reservation. Used keys are left untouched.
	Release(ctx context.Context, key string) error
}

// Key builds the guard key for a payer address and authorization nonce.
// Both parts are lower-cased and carry exactly one 0x prefix, so every
// spelling that decodes to the same bytes yields the same key.
func Key(from, nonce string) string {
	return canonicalHex(from) + "-" + canonicalHex(nonce)
}

func canonicalHex(s string) string {
	s = strings.ToLower(s)
	return "0x" + strings.TrimPrefix(s, "0x")
}

type keyState uint8

const (
	keyReserved keyState = iota + 1
	keyUsed
)

// MemoryGuard is a process-local Guard backed by a mutex-protected map.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]keyState
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]keyState)}
}

// IsUsed implements Guard.
func (g *MemoryGuard) IsUsed(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key] == keyUsed, nil
}

// MarkUsed implements Guard.
func (g *MemoryGuard) MarkUsed(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = keyUsed
	return nil
}

// MarkIfAbsent implements Guard.
func (g *MemoryGuard) MarkIfAbsent(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = keyUsed
	return true, nil
}

// Reserve implements Guard.
func (g *MemoryGuard) Reserve(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = keyReserved
	return true, nil
}

// Release implements Guard.
func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] == keyReserved {
		delete(g.keys, key)
	}
	return nil
}

// Len returns the number of used keys.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, state := range g.keys {
		if state == keyUsed {
			n++
		}
	}
	return n
}
