// Package archive persists recorded statistics samples in a pebble store so
// history survives process restarts.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/guileen/leasepool/stats"
)

const (
	samplePrefix = 's'
	keyLen       = 1 + 8 + 8
)

// seqKey holds the last sequence number handed out
var seqKey = []byte("m/seq")

var ErrClosed = errors.New("archive is closed")

// Config configures the pebble store
type Config struct {
	Path      string
	CacheSize int64
	// Sync forces every append to disk before returning
	Sync bool
}

// DefaultConfig returns a config for a small write-mostly store at path
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		CacheSize: 8 << 20,
		Sync:      false,
	}
}

// Archive is an append-only, time-ordered sample store
type Archive struct {
	mu     sync.RWMutex
	db     *pebble.DB
	write  *pebble.WriteOptions
	seq    uint64
	closed bool
}

// Open opens (or creates) the archive at config.Path
func Open(config Config) (*Archive, error) {
	if config.Path == "" {
		return nil, errors.New("archive path is required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig(config.Path).CacheSize
	}

	cache := pebble.NewCache(config.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(config.Path, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	a := &Archive{db: db, write: pebble.NoSync}
	if config.Sync {
		a.write = pebble.Sync
	}

	last, err := a.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	a.seq = last
	return a, nil
}

// Append stores sample under a key ordered by RecordedAt then insertion
func (a *Archive) Append(sample stats.Sample) error {
	value, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	seq := a.seq + 1
	var seqValue [8]byte
	binary.BigEndian.PutUint64(seqValue[:], seq)

	batch := a.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(sampleKey(sample.RecordedAt, seq), value, nil); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	if err := batch.Set(seqKey, seqValue[:], nil); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	if err := batch.Commit(a.write); err != nil {
		return fmt.Errorf("commit sample: %w", err)
	}
	a.seq = seq
	return nil
}

// Range returns samples recorded in [from, to) in insertion order
func (a *Archive) Range(from, to time.Time) ([]stats.Sample, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: sampleKey(from, 0),
		UpperBound: sampleKey(to, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var samples []stats.Sample
	for iter.First(); iter.Valid(); iter.Next() {
		sample, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, iter.Error()
}

// Recent returns up to n of the newest samples, oldest first
func (a *Archive) Recent(n int) ([]stats.Sample, error) {
	if n <= 0 {
		return nil, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	iter, err := a.db.NewIter(prefixBounds())
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	samples := make([]stats.Sample, 0, n)
	for iter.Last(); iter.Valid() && len(samples) < n; iter.Prev() {
		sample, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// DeleteBefore drops every sample recorded before t
func (a *Archive) DeleteBefore(t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.db.DeleteRange(prefixBounds().LowerBound, sampleKey(t, 0), a.write)
}

// Close flushes and closes the store; it is safe to call more than once
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Archive) lastSeq() (uint64, error) {
	value, closer, err := a.db.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, fmt.Errorf("corrupt sequence value of %d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

// sampleKey is the prefix byte, the big-endian unix nanoseconds and a
// sequence number. Times before the epoch are clamped to zero.
func sampleKey(t time.Time, seq uint64) []byte {
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	key := make([]byte, keyLen)
	key[0] = samplePrefix
	binary.BigEndian.PutUint64(key[1:9], uint64(nanos))
	binary.BigEndian.PutUint64(key[9:], seq)
	return key
}

func prefixBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte{samplePrefix},
		UpperBound: []byte{samplePrefix + 1},
	}
}

func decode(value []byte) (stats.Sample, error) {
	var sample stats.Sample
	if err := json.Unmarshal(value, &sample); err != nil {
		return stats.Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	return sample, nil
}
