package runtime

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// accountLocks serializes transactions that touch the same account. Writable accounts
// are held exclusively and read-only accounts are shared. A transaction takes all of its
// locks at once or none of them, so two transactions can never deadlock on each other.
type accountLocks struct {
	mu      sync.Mutex
	writers map[solana.PublicKey]bool
	readers map[solana.PublicKey]int
	changed chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{
		writers: make(map[solana.PublicKey]bool),
		readers: make(map[solana.PublicKey]int),
		changed: make(chan struct{}),
	}
}

type lockRequest struct {
	writable []solana.PublicKey
	readonly []solana.PublicKey
}

// newLockRequest merges duplicate keys; a key named writable anywhere is locked writable.
func newLockRequest(metas []AccountMeta) lockRequest {
	writable := make(map[solana.PublicKey]bool, len(metas))
	order := make([]solana.PublicKey, 0, len(metas))
	for _, m := range metas {
		if _, seen := writable[m.PublicKey]; !seen {
			order = append(order, m.PublicKey)
		}
		writable[m.PublicKey] = writable[m.PublicKey] || m.IsWritable
	}
	var req lockRequest
	for _, key := range order {
		if writable[key] {
			req.writable = append(req.writable, key)
		} else {
			req.readonly = append(req.readonly, key)
		}
	}
	return req
}

func (l *accountLocks) available(req lockRequest) bool {
	for _, key := range req.writable {
		if l.writers[key] || l.readers[key] > 0 {
			return false
		}
	}
	for _, key := range req.readonly {
		if l.writers[key] {
			return false
		}
	}
	return true
}

// acquire blocks until every lock in metas is free or ctx is done.
func (l *accountLocks) acquire(ctx context.Context, metas []AccountMeta) (func(), error) {
	req := newLockRequest(metas)
	for {
		l.mu.Lock()
		if l.available(req) {
			for _, key := range req.writable {
				l.writers[key] = true
			}
			for _, key := range req.readonly {
				l.readers[key]++
			}
			l.mu.Unlock()
			var once sync.Once
			return func() { once.Do(func() { l.release(req) }) }, nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *accountLocks) release(req lockRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range req.writable {
		delete(l.writers, key)
	}
	for _, key := range req.readonly {
		if l.readers[key] <= 1 {
			delete(l.readers, key)
		} else {
			l.readers[key]--
		}
	}
	close(l.changed)
	l.changed = make(chan struct{})
}
