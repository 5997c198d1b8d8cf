package reinforcement

import (
	"encoding/binary"
	"sync"

	. "miner/mine_world"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies a training run by content: the map layout and the episode and
// target counts. Two structurally equal grids give equal keys regardless of identity.
type CacheKey struct {
	Grid     Grid
	Episodes int
	Target   int
}

// encode packs the key contents into bytes: size, episodes, target, then one byte per cell.
func (key CacheKey) encode() []byte {
	n := key.Grid.Size * key.Grid.Size
	buf := make([]byte, 24, 24+n)
	binary.LittleEndian.PutUint64(buf[0:], uint64(key.Grid.Size))
	binary.LittleEndian.PutUint64(buf[8:], uint64(key.Episodes))
	binary.LittleEndian.PutUint64(buf[16:], uint64(key.Target))
	for i := 0; i < n; i++ {
		buf = append(buf, byte(key.Grid.Cells[i]))
	}
	return buf
}

// Digest hashes the key contents.
func (key CacheKey) Digest() uint64 {
	return xxhash.Sum64(key.encode())
}

// CacheStats counts cache lookups.
type CacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

type cacheEntry struct {
	key      CacheKey
	training *Training
}

// TrainingCache memoizes finished trainings by content digest. Entries keep their full
// key, so a digest collision is a miss that replaces the entry. Concurrent callers
// asking for the same key share a single training run.
type TrainingCache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	stats   CacheStats
	group   singleflight.Group
}

func NewTrainingCache() *TrainingCache {
	return &TrainingCache{
		entries: map[uint64]cacheEntry{},
	}
}

// Get returns the cached training for the key, if any. Get counts a hit or a miss.
func (c *TrainingCache) Get(key CacheKey) (*Training, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key.Digest()]
	if ok && entry.key == key {
		c.stats.Hits++
		return entry.training, true
	}
	c.stats.Misses++
	return nil, false
}

// Put stores a training under the key.
func (c *TrainingCache) Put(key CacheKey, training *Training) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.Digest()] = cacheEntry{key: key, training: training}
}

// GetOrTrain returns the cached training for the key, or runs train and caches its
// result. The bool reports whether the result came from the cache or from a run
// shared with a concurrent caller.
func (c *TrainingCache) GetOrTrain(key CacheKey, train func() *Training) (*Training, bool) {
	if training, ok := c.Get(key); ok {
		return training, true
	}

	// Flights are keyed by the exact contents, so colliding digests never share a run.
	val, _, shared := c.group.Do(string(key.encode()), func() (interface{}, error) {
		// A previous flight for this key may have just landed.
		c.mu.Lock()
		entry, ok := c.entries[key.Digest()]
		c.mu.Unlock()
		if ok && entry.key == key {
			return entry.training, nil
		}

		training := train()
		c.Put(key, training)
		return training, nil
	})
	return val.(*Training), shared
}

// Stats returns a snapshot of the cache counters.
func (c *TrainingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}
