// Package cache is the shared artifact store used by adapters that build
// expensive intermediate state (for example analysis databases). Entries are
// directories under the cache root indexed in a small sqlite database.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrLocked is returned when an entry cannot be evicted because an analysis holds it.
var ErrLocked = errors.New("cache entry in use")

// Entry describes one cached artifact.
type Entry struct {
	Key     string
	Path    string
	Created time.Time
	MaxAge  time.Duration
}

// Expired reports whether the entry is older than its max age. A zero max age never expires.
func (e Entry) Expired(now time.Time) bool {
	return e.MaxAge > 0 && now.Sub(e.Created) > e.MaxAge
}

// Cache is safe for concurrent use, also across processes sharing one
// directory. Writers of a key are serialized; readers share.
type Cache struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	conn  *sqlite.Conn
	locks map[string]*entryLock
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key      TEXT PRIMARY KEY,
	path     TEXT NOT NULL,
	created  INTEGER NOT NULL,
	max_age  INTEGER NOT NULL
);
`

// Open creates dir if needed and opens its index.
func Open(dir string) (*Cache, error) {
	for _, sub := range []string{"entries", "locks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	conn, err := sqlite.OpenConn(filepath.Join(dir, "index.db"), sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{
		dir:   dir,
		now:   time.Now,
		conn:  conn,
		locks: make(map[string]*entryLock),
	}, nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the directory reserved for key. It is not created.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, "entries", safeName(key))
}

func safeName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(key))
	return b.String() + "-" + hex.EncodeToString(sum[:4])
}

func (c *Cache) lockFor(key string) *entryLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = newEntryLock()
		c.locks[key] = l
	}
	l.refs++
	return l
}

func (c *Cache) unref(key string, l *entryLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, key)
	}
}

// Read takes a shared hold on key, waiting for any writer. Release it when done.
func (c *Cache) Read(key string) (*Lease, error) {
	return c.acquire(key, false, true)
}

// Write takes the exclusive hold on key, waiting for readers and writers.
func (c *Cache) Write(key string) (*Lease, error) {
	return c.acquire(key, true, true)
}

// Lookup returns the indexed entry for key.
func (c *Cache) Lookup(key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		e     Entry
		found bool
	)
	err := sqlitex.ExecuteTransient(c.conn,
		`SELECT key, path, created, max_age FROM entries WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				e = scanEntry(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return e, found, nil
}

// Fresh reports whether key has an unexpired entry whose directory still exists.
func (c *Cache) Fresh(key string) (Entry, bool, error) {
	e, ok, err := c.Lookup(key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.Expired(c.now()) {
		return e, false, nil
	}
	if _, err := os.Stat(e.Path); err != nil {
		return e, false, nil
	}
	return e, true, nil
}

// Put records that key's directory now holds a complete artifact.
// The caller should hold the write lock.
func (c *Cache) Put(key string, maxAge time.Duration) (Entry, error) {
	e := Entry{Key: key, Path: c.Path(key), Created: c.now(), MaxAge: maxAge}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := sqlitex.ExecuteTransient(c.conn,
		`INSERT INTO entries (key, path, created, max_age) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET path = excluded.path, created = excluded.created, max_age = excluded.max_age`,
		&sqlitex.ExecOptions{Args: []any{e.Key, e.Path, e.Created.UnixNano(), int64(e.MaxAge)}})
	if err != nil {
		return Entry{}, fmt.Errorf("index %s: %w", key, err)
	}
	return e, nil
}

// Entries lists every indexed entry ordered by key.
func (c *Cache) Entries() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	err := sqlitex.ExecuteTransient(c.conn,
		`SELECT key, path, created, max_age FROM entries ORDER BY key`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanEntry(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// Evict removes key. It returns ErrLocked if any reader or writer, in this
// process or another, holds the key.
func (c *Cache) Evict(key string) error {
	_, err := c.evict(key, false)
	return err
}

func (c *Cache) evict(key string, onlyExpired bool) (bool, error) {
	lease, err := c.acquire(key, true, false)
	if err != nil {
		return false, err
	}
	defer lease.Release()

	if onlyExpired {
		// the entry may have been rebuilt since it was listed
		e, ok, err := c.Lookup(key)
		if err != nil {
			return false, err
		}
		if ok && !e.Expired(c.now()) {
			return false, nil
		}
	}
	return true, c.remove(key)
}

func (c *Cache) remove(key string) error {
	if err := os.RemoveAll(c.Path(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := sqlitex.ExecuteTransient(c.conn, `DELETE FROM entries WHERE key = ?`,
		&sqlitex.ExecOptions{Args: []any{key}}); err != nil {
		return fmt.Errorf("unindex %s: %w", key, err)
	}
	return nil
}

// Prune evicts every expired entry that is not in use and returns the evicted keys.
func (c *Cache) Prune(ctx context.Context) ([]string, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	now := c.now()
	var evicted []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		if !e.Expired(now) {
			continue
		}
		removed, err := c.evict(e.Key, true)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				continue
			}
			return evicted, err
		}
		if removed {
			evicted = append(evicted, e.Key)
		}
	}
	return evicted, nil
}

func scanEntry(stmt *sqlite.Stmt) Entry {
	return Entry{
		Key:     stmt.ColumnText(0),
		Path:    stmt.ColumnText(1),
		Created: time.Unix(0, stmt.ColumnInt64(2)),
		MaxAge:  time.Duration(stmt.ColumnInt64(3)),
	}
}
