package reinforcement

import (
	"sync"
	"sync/atomic"
	"testing"

	. "miner/mine_world"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingCacheHitMiss(t *testing.T) {
	cache := NewTrainingCache()
	grid := mustParse("...", ".i.", "..g")
	key := CacheKey{Grid: grid, Episodes: 1000, Target: 2}

	runs := 0
	train := func() *Training {
		runs++
		return newTestTrainer(1).TrainWithReport(grid, 1000, 2)
	}

	first, hit := cache.GetOrTrain(key, train)
	require.False(t, hit)
	require.NotNil(t, first)
	require.Equal(t, 1, runs)

	// A structurally equal grid is the same key.
	same := mustParse("...", ".i.", "..g")
	second, hit := cache.GetOrTrain(CacheKey{Grid: same, Episodes: 1000, Target: 2}, train)
	require.True(t, hit)
	assert.Same(t, first, second)
	assert.Equal(t, 1, runs)

	// Any change to the content is a different key.
	_, hit = cache.GetOrTrain(CacheKey{Grid: grid, Episodes: 2000, Target: 2}, train)
	assert.False(t, hit)
	other := grid
	other.Set(1, 1, ROCK)
	_, hit = cache.GetOrTrain(CacheKey{Grid: other, Episodes: 1000, Target: 1}, train)
	assert.False(t, hit)
	assert.Equal(t, 3, runs)

	stats := cache.Stats()
	assert.Equal(t, CacheStats{Hits: 1, Misses: 3, Entries: 3}, stats)
}

func TestTrainingCacheDigest(t *testing.T) {
	grid := mustParse("...", ".i.", "..g")
	a := CacheKey{Grid: grid, Episodes: 1000, Target: 2}
	b := a
	assert.Equal(t, a.Digest(), b.Digest())

	b.Target = 1
	assert.NotEqual(t, a.Digest(), b.Digest())

	// Cells outside the grid's size never take part in the digest.
	c := a
	c.Grid.Cells[MAX_CELLS-1] = DIAMOND
	assert.Equal(t, a.Digest(), c.Digest())
}

func TestTrainingCacheCollision(t *testing.T) {
	cache := NewTrainingCache()
	grid := mustParse("...", ".i.", "..g")
	key := CacheKey{Grid: grid, Episodes: 1000, Target: 2}
	planted := &Training{Table: NewValueTable(), Report: &TrainingReport{}}

	// Plant an entry under the key's digest that belongs to another key.
	impostor := key
	impostor.Episodes = 5000
	cache.entries[key.Digest()] = cacheEntry{key: impostor, training: planted}

	training, hit := cache.GetOrTrain(key, func() *Training {
		return &Training{Table: NewValueTable(), Report: &TrainingReport{}}
	})
	require.False(t, hit)
	assert.NotSame(t, planted, training)

	again, hit := cache.Get(key)
	require.True(t, hit)
	assert.Same(t, training, again)
}

func TestTrainingCacheSharesConcurrentRuns(t *testing.T) {
	cache := NewTrainingCache()
	grid := mustParse("...", ".i.", "..g")
	key := CacheKey{Grid: grid, Episodes: 1000, Target: 2}

	var runs int32
	release := make(chan struct{})
	train := func() *Training {
		atomic.AddInt32(&runs, 1)
		<-release
		return &Training{Table: NewValueTable(), Report: &TrainingReport{}}
	}

	const callers = 8
	results := make([]*Training, callers)
	started := sync.WaitGroup{}
	done := sync.WaitGroup{}
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], _ = cache.GetOrTrain(key, train)
		}(i)
	}
	started.Wait()
	close(release)
	done.Wait()

	for _, result := range results {
		assert.Same(t, results[0], result)
	}
	// Callers that arrived after the first flight landed hit the cache instead.
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}
