package hashcache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCacheDisabled(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	k := Key{Device: 1, Inode: 2, Size: 100, MTime: time.Now()}
	hexHash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

	if err := c.Set(k, hexHash); err != nil {
		t.Errorf("Set() on disabled cache returned error: %v", err)
	}

	if _, ok := c.Get(k); ok {
		t.Errorf("Get() on disabled cache returned a hit, want miss")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	c, err := Open(cachePath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	k := Key{Device: 1, Inode: 42, Size: 1024, MTime: time.Unix(1609459200, 0)}
	hexHash := "abcdefghijklmnopqrstuvwxyz0123456789abcdefghijklmnopqrstuvwxyz01"[:64]

	if err := c.Set(k, hexHash); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok := c.Get(k)
	if !ok {
		t.Fatalf("Get() missed after Set()")
	}
	if got != hexHash {
		t.Errorf("Get() = %q, want %q", got, hexHash)
	}
}

func TestCacheChangedMTimeMisses(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	c, err := Open(cachePath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	base := Key{Device: 1, Inode: 42, Size: 1024, MTime: time.Unix(1609459200, 0)}
	hexHash := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

	if err := c.Set(base, hexHash); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	changedMTime := base
	changedMTime.MTime = base.MTime.Add(time.Second)
	if _, ok := c.Get(changedMTime); ok {
		t.Errorf("Get() with changed mtime returned a hit, want miss")
	}

	changedSize := base
	changedSize.Size = base.Size + 1
	if _, ok := c.Get(changedSize); ok {
		t.Errorf("Get() with changed size returned a hit, want miss")
	}
}

func TestCachePersistsAcrossReopen(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache.db")

	k := Key{Device: 7, Inode: 9, Size: 2048, MTime: time.Unix(1700000000, 0)}
	hexHash := "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"[:64]

	c1, err := Open(cachePath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := c1.Set(k, hexHash); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	c2, err := Open(cachePath)
	if err != nil {
		t.Fatalf("reopen Open() failed: %v", err)
	}
	defer func() { _ = c2.Close() }()

	got, ok := c2.Get(k)
	if !ok || got != hexHash {
		t.Errorf("Get() after reopen = (%q, %v), want (%q, true)", got, ok, hexHash)
	}
}
