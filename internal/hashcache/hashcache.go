// Package hashcache provides a persistent keyed store mapping
// (device, inode, size, mtime) to a file's sha256 hash, so that repeat
// scans of an unchanged file never re-read its bytes.
package hashcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "hashes"
const hashSize = 32

// Key identifies a file for cache lookup. Any change to Size or MTime
// produces a different key and therefore a cache miss; entries are never
// evicted because staleness is structurally impossible.
type Key struct {
	Device uint64
	Inode  uint64
	Size   int64
	MTime  time.Time
}

// Cache provides persistent caching of whole-file sha256 hashes using
// BoltDB. Crash-safety and concurrent-instance protection come from
// BoltDB's own write-ahead log and file locking; concurrent access from
// multiple worker goroutines in one process is serialized by mu.
type Cache struct {
	mu      sync.Mutex
	db      *bolt.DB
	enabled bool
}

// Open opens (creating if necessary) a single-file key-value database at
// path. The parent directory is created if missing. Passing an empty path
// returns a disabled cache where Get/Set are no-ops.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open hash cache (locked by another instance?): %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{db: db, enabled: true}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

const keyVersion byte = 1 // bump when key format changes

func makeKey(k Key) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	_ = binary.Write(buf, binary.BigEndian, k.Device)
	_ = binary.Write(buf, binary.BigEndian, k.Inode)
	_ = binary.Write(buf, binary.BigEndian, k.Size)
	_ = binary.Write(buf, binary.BigEndian, k.MTime.UnixNano())
	return buf.Bytes()
}

// Get retrieves a cached hex-encoded sha256 for key, or ("", false) on
// a miss.
func (c *Cache) Get(k Key) (hex string, ok bool) {
	if !c.enabled {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		v := b.Get(makeKey(k))
		if len(v) == hashSize*2 {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return "", false
	}
	return string(data), true
}

// Set stores the hex-encoded sha256 hash for key.
func (c *Cache) Set(k Key, hex string) error {
	if !c.enabled {
		return nil
	}
	if len(hex) != hashSize*2 {
		return fmt.Errorf("hashcache: set: invalid hex length %d", len(hex))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(k), []byte(hex))
	})
}
