package loan

import (
	"context"
	"sync"
)

// bookLocks is a set of mutexes keyed by book ID. Entries exist only while
// someone holds or waits for them.
type bookLocks struct {
	mu    sync.Mutex
	locks map[int64]*bookLock
}

type bookLock struct {
	// ch has capacity one; holding the lock means having sent into it.
	ch   chan struct{}
	refs int
}

func newBookLocks() *bookLocks {
	return &bookLocks{locks: make(map[int64]*bookLock)}
}

// acquire blocks until the lock for bookID is held or ctx is done. The
// returned release func must be called exactly once.
func (l *bookLocks) acquire(ctx context.Context, bookID int64) (func(), error) {
	l.mu.Lock()
	bl, ok := l.locks[bookID]
	if !ok {
		bl = &bookLock{ch: make(chan struct{}, 1)}
		l.locks[bookID] = bl
	}
	bl.refs++
	l.mu.Unlock()

	select {
	case bl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-bl.ch
				l.drop(bookID, bl)
			})
		}, nil
	case <-ctx.Done():
		l.drop(bookID, bl)
		return nil, ctx.Err()
	}
}

func (l *bookLocks) drop(bookID int64, bl *bookLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bl.refs--
	if bl.refs == 0 {
		delete(l.locks, bookID)
	}
}

// held returns the number of books with a holder or waiter.
func (l *bookLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
