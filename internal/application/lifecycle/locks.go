package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned to non-blocking callers when another transition holds
// the engagement.
var ErrBusy = errors.New("engagement is busy")

// keyedLocker serializes work per engagement. Entries are reference counted
// so idle engagements do not accumulate.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[uuid.UUID]*keyedLock)}
}

func (k *keyedLocker) ref(id uuid.UUID) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	return l
}

func (k *keyedLocker) unref(id uuid.UUID, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// acquire takes the engagement lock. With wait=false it fails fast with
// ErrBusy instead of queueing.
func (k *keyedLocker) acquire(ctx context.Context, id uuid.UUID, wait bool) (func(), error) {
	l := k.ref(id)
	release := func() {
		<-l.sem
		k.unref(id, l)
	}

	if !wait {
		select {
		case l.sem <- struct{}{}:
			return release, nil
		default:
			k.unref(id, l)
			return nil, ErrBusy
		}
	}

	select {
	case l.sem <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		k.unref(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
