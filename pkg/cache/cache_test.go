package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func mustLease(t *testing.T, take func(string) (*Lease, error), key string) *Lease {
	t.Helper()
	l, err := take(key)
	if err != nil {
		t.Fatalf("lease %s: %v", key, err)
	}
	return l
}

// indexed creates key's directory and index row as a finished build would.
func indexed(t *testing.T, c *Cache, key string, maxAge time.Duration) {
	t.Helper()
	if err := os.MkdirAll(c.Path(key), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(key, maxAge); err != nil {
		t.Fatal(err)
	}
}

func TestPutAndFresh(t *testing.T) {
	c := openTest(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := "codeql/go/abc123"
	if _, ok, err := c.Fresh(key); err != nil || ok {
		t.Fatalf("Fresh on empty cache = %v, %v", ok, err)
	}

	lease := mustLease(t, c.Write, key)
	if err := os.MkdirAll(c.Path(key), 0o755); err != nil {
		t.Fatal(err)
	}
	e, err := c.Put(key, time.Hour)
	lease.Release()
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e.Path != c.Path(key) {
		t.Errorf("entry path = %q, want %q", e.Path, c.Path(key))
	}

	if _, ok, err := c.Fresh(key); err != nil || !ok {
		t.Fatalf("Fresh after Put = %v, %v", ok, err)
	}

	now = now.Add(2 * time.Hour)
	if _, ok, _ := c.Fresh(key); ok {
		t.Error("entry should have expired")
	}
}

func TestPathIsFilesystemSafe(t *testing.T) {
	c := openTest(t)
	a := c.Path("a/b")
	b := c.Path("a_b")
	if a == b {
		t.Errorf("distinct keys share a path: %s", a)
	}
}

func TestPruneSkipsEntriesInUse(t *testing.T) {
	c := openTest(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for _, key := range []string{"old-busy", "old-idle", "new"} {
		if err := os.MkdirAll(c.Path(key), 0o755); err != nil {
			t.Fatal(err)
		}
		age := time.Minute
		if key == "new" {
			age = 24 * time.Hour
		}
		if _, err := c.Put(key, age); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(time.Hour)

	lease := mustLease(t, c.Read, "old-busy")
	evicted, err := c.Prune(context.Background())
	lease.Release()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "old-idle" {
		t.Fatalf("evicted = %v, want [old-idle]", evicted)
	}
	if _, err := os.Stat(c.Path("old-idle")); !os.IsNotExist(err) {
		t.Errorf("old-idle directory still present: %v", err)
	}

	entries, err := c.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Key != "new" || entries[1].Key != "old-busy" {
		t.Errorf("remaining entries = %+v", entries)
	}

	evicted, err = c.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(evicted) != 1 || evicted[0] != "old-busy" {
		t.Errorf("second prune evicted %v, want [old-busy]", evicted)
	}
}

func TestEvictLocked(t *testing.T) {
	c := openTest(t)
	lease := mustLease(t, c.Write, "k")
	defer lease.Release()
	if err := c.Evict("k"); !errors.Is(err, ErrLocked) {
		t.Errorf("Evict during write = %v, want ErrLocked", err)
	}
}

func TestReadersShare(t *testing.T) {
	c := openTest(t)
	r1 := mustLease(t, c.Read, "k")
	done := make(chan struct{})
	go func() {
		r2, err := c.Read("k")
		if err == nil {
			r2.Release()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second reader blocked")
	}
	r1.Release()
}

func TestPruneFromAnotherHandleSkipsHeldEntry(t *testing.T) {
	if !crossProcess {
		t.Skip("no file locking on this platform")
	}
	dir := t.TempDir()
	a, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	b.now = func() time.Time { return now.Add(time.Hour) }

	key := "codeql:go:/repo"
	indexed(t, a, key, time.Minute)
	reader := mustLease(t, a.Read, key)

	evicted, err := b.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(evicted) != 0 {
		t.Errorf("evicted %v while another handle reads it", evicted)
	}
	if _, err := os.Stat(a.Path(key)); err != nil {
		t.Fatalf("database directory removed while held: %v", err)
	}
	if err := b.Evict(key); !errors.Is(err, ErrLocked) {
		t.Errorf("Evict from another handle = %v, want ErrLocked", err)
	}

	reader.Release()
	evicted, err = b.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(evicted) != 1 || evicted[0] != key {
		t.Errorf("evicted after release = %v, want [%s]", evicted, key)
	}
}

func TestDowngradeKeepsEntryHeld(t *testing.T) {
	c := openTest(t)
	key := "k"
	indexed(t, c, key, time.Hour)

	lease := mustLease(t, c.Write, key)
	if err := lease.Downgrade(); err != nil {
		t.Fatalf("Downgrade: %v", err)
	}
	if err := c.Evict(key); !errors.Is(err, ErrLocked) {
		t.Errorf("Evict after downgrade = %v, want ErrLocked", err)
	}

	// readers are admitted once the writer downgrades
	done := make(chan struct{})
	go func() {
		if r, err := c.Read(key); err == nil {
			r.Release()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader blocked by a downgraded lease")
	}

	lease.Release()
	lease.Release()
	if err := c.Evict(key); err != nil {
		t.Errorf("Evict after release: %v", err)
	}
}

func TestPruneSkipsRebuiltEntry(t *testing.T) {
	c := openTest(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	indexed(t, c, "k", time.Hour)

	removed, err := c.evict("k", true)
	if err != nil || removed {
		t.Errorf("evict of a fresh entry = %v, %v; want kept", removed, err)
	}
	if _, err := os.Stat(c.Path("k")); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
}
