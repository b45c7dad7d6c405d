package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// NonceStore persists the highest action nonce across restarts.
type NonceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// nonceClock hands out strictly increasing millisecond nonces. Once
// restored from a store, every new high-water mark is written back.
type nonceClock struct {
	last   atomic.Uint64
	saved  atomic.Uint64
	warned atomic.Bool

	mu    sync.Mutex
	store NonceStore
	key   string
	log   *zap.Logger
}

func (n *nonceClock) next() uint64 {
	now := uint64(time.Now().UnixMilli())
	for {
		prev := n.last.Load()
		next := max(now, prev+1)
		if n.last.CompareAndSwap(prev, next) {
			n.save(next)
			return next
		}
	}
}

// restore seeds the clock from the stored nonce (or now, whichever is
// later) and enables persistence.
func (n *nonceClock) restore(ctx context.Context, store NonceStore, key string) (uint64, error) {
	seed := max(uint64(time.Now().UnixMilli()), n.last.Load())
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load nonce: %w", err)
	}
	if ok {
		stored, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid stored nonce %q: %w", raw, err)
		}
		seed = max(seed, stored)
	}
	n.mu.Lock()
	n.store = store
	n.key = key
	n.mu.Unlock()
	n.last.Store(seed)
	n.saved.Store(seed)
	return seed, nil
}

func (n *nonceClock) save(nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.store == nil || nonce <= n.saved.Load() {
		return
	}
	if err := n.store.Set(context.Background(), n.key, strconv.FormatUint(nonce, 10)); err != nil {
		if n.log != nil && n.warned.CompareAndSwap(false, true) {
			n.log.Warn("nonce persistence failed", zap.String("nonce_key", n.key), zap.Error(err))
		}
		return
	}
	n.saved.Store(nonce)
	n.warned.Store(false)
}
