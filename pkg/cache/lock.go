package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var errWouldBlock = errors.New("lock held")

// entryLock guards one key within this process. Unlike sync.RWMutex it can
// turn a writer into a reader without letting anyone in between.
type entryLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writer  bool
	refs    int
}

func newEntryLock() *entryLock {
	l := &entryLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *entryLock) lock(exclusive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.writer || (exclusive && l.readers > 0) {
		l.cond.Wait()
	}
	if exclusive {
		l.writer = true
	} else {
		l.readers++
	}
}

func (l *entryLock) tryExclusive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer || l.readers > 0 {
		return false
	}
	l.writer = true
	return true
}

func (l *entryLock) unlock(exclusive bool) {
	l.mu.Lock()
	if exclusive {
		l.writer = false
	} else {
		l.readers--
	}
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *entryLock) downgrade() {
	l.mu.Lock()
	l.writer = false
	l.readers++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Lease is a hold on one cache key, shared or exclusive. The hold covers
// other goroutines and, through a lock file, other processes using the same
// cache directory.
type Lease struct {
	c         *Cache
	key       string
	l         *entryLock
	f         *os.File
	exclusive bool
	released  bool
}

func (c *Cache) lockPath(key string) string {
	return filepath.Join(c.dir, "locks", safeName(key))
}

func (c *Cache) acquire(key string, exclusive, block bool) (*Lease, error) {
	l := c.lockFor(key)
	if block {
		l.lock(exclusive)
	} else if !l.tryExclusive() {
		c.unref(key, l)
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}
	fail := func(err error) (*Lease, error) {
		l.unlock(exclusive)
		c.unref(key, l)
		return nil, err
	}

	f, err := os.OpenFile(c.lockPath(key), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fail(fmt.Errorf("open lock %s: %w", key, err))
	}
	if err := lockFile(f, exclusive, block); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return fail(fmt.Errorf("%s: %w", key, ErrLocked))
		}
		return fail(fmt.Errorf("lock %s: %w", key, err))
	}
	return &Lease{c: c, key: key, l: l, f: f, exclusive: exclusive}, nil
}

// Downgrade turns an exclusive lease into a shared one. No writer or evictor
// in this process can take the key in between; another process's evictor
// sees an unexpired entry and leaves it alone.
func (s *Lease) Downgrade() error {
	if s.released || !s.exclusive {
		return nil
	}
	if err := lockFile(s.f, false, true); err != nil {
		return fmt.Errorf("downgrade %s: %w", s.key, err)
	}
	s.l.downgrade()
	s.exclusive = false
	return nil
}

// Release drops the hold. It is safe to call more than once.
func (s *Lease) Release() {
	if s.released {
		return
	}
	s.released = true
	unlockFile(s.f)
	s.f.Close()
	s.l.unlock(s.exclusive)
	s.c.unref(s.key, s.l)
}
