package utils

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultCaptureTTL matches the longest lookback window the dashboard
// serves; older events can never feed a recompute.
const DefaultCaptureTTL = 720 * time.Hour

// CaptureLog is an append-only event log on badger. Keys order by stream,
// then timestamp, so a replay is one prefix scan:
//
//	cap:<stream>:<8-byte big-endian unix nanos><4-byte seq>
//
// Values are opaque payloads (the daemon stores raw event JSON). Entries
// expire via badger TTL. A separate snap: keyspace holds latest-state
// snapshots without expiry.
type CaptureLog struct {
	db  *badger.DB
	ttl time.Duration

	mu        sync.Mutex
	lastNanos int64
	seq       uint32
}

// OpenCaptureLog opens (creating if needed) the capture database at path.
// ttl <= 0 selects DefaultCaptureTTL.
func OpenCaptureLog(path string, ttl time.Duration) (*CaptureLog, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultCaptureTTL
	}
	return &CaptureLog{db: db, ttl: ttl}, nil
}

func (c *CaptureLog) Close() error {
	return c.db.Close()
}

// Append records one event on the stream, stamped now.
func (c *CaptureLog) Append(stream string, payload []byte) error {
	return c.appendAt(stream, time.Now(), payload)
}

func (c *CaptureLog) appendAt(stream string, ts time.Time, payload []byte) error {
	nanos := ts.UnixNano()

	c.mu.Lock()
	if nanos == c.lastNanos {
		c.seq++
	} else {
		c.lastNanos = nanos
		c.seq = 0
	}
	seq := c.seq
	c.mu.Unlock()

	key := captureKey(stream, nanos, seq)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, payload).WithTTL(c.ttl))
	})
}

// ReplaySince walks the stream's events at or after since, oldest first,
// calling fn for each. A non-nil error from fn stops the walk and is
// returned.
func (c *CaptureLog) ReplaySince(stream string, since time.Time, fn func(ts time.Time, payload []byte) error) error {
	prefix := streamPrefix(stream)
	nanos := since.UnixNano()
	if since.IsZero() || nanos < 0 {
		// The zero time means "from the beginning"; its raw UnixNano is
		// negative and would sort past every real key.
		nanos = 0
	}
	seek := captureKey(stream, nanos, 0)

	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) < len(prefix)+12 {
				continue
			}
			ts := time.Unix(0, int64(binary.BigEndian.Uint64(k[len(prefix):len(prefix)+8])))
			err := item.Value(func(v []byte) error {
				return fn(ts, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of retained events on the stream.
func (c *CaptureLog) Count(stream string) (int, error) {
	prefix := streamPrefix(stream)
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// PutSnapshot stores a latest-state snapshot under name, replacing any
// previous one. Snapshots do not expire.
func (c *CaptureLog) PutSnapshot(name string, payload []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), payload)
	})
}

// Snapshot returns the snapshot stored under name, or nil when there is
// none.
func (c *CaptureLog) Snapshot(name string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return val, err
}

func streamPrefix(stream string) []byte {
	return []byte("cap:" + stream + ":")
}

func captureKey(stream string, nanos int64, seq uint32) []byte {
	prefix := streamPrefix(stream)
	key := make([]byte, len(prefix)+12)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(nanos))
	binary.BigEndian.PutUint32(key[len(prefix)+8:], seq)
	return key
}

func snapshotKey(name string) []byte {
	return []byte(fmt.Sprintf("snap:%s", name))
}
