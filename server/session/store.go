package session

import (
	"fmt"
	"math/rand"
	"sync"

	"miner/mine_world"
)

// Store holds the live sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seeds    *rand.Rand
}

// NewStore returns an empty store. Session randomness is derived from seed, so a
// fixed seed replays the same sequence of generated maps and starts.
func NewStore(seed int64) *Store {
	return &Store{
		sessions: map[string]*Session{},
		seeds:    rand.New(rand.NewSource(seed)),
	}
}

// Create adds a session over a random map of the given size.
func (store *Store) Create(size int) (*Session, error) {
	rng := store.newRng()
	grid, err := mine_world.GenerateMap(rng, size)
	if err != nil {
		return nil, err
	}
	return store.add(newSession(grid, rng)), nil
}

// CreateWithMap adds a session over the given map.
func (store *Store) CreateWithMap(grid mine_world.Grid) *Session {
	return store.add(newSession(grid, store.newRng()))
}

func (store *Store) add(sess *Session) *Session {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.sessions[sess.Id] = sess
	return sess
}

func (store *Store) newRng() *rand.Rand {
	store.mu.Lock()
	defer store.mu.Unlock()
	return rand.New(rand.NewSource(store.seeds.Int63()))
}

// Get returns the session with the given id.
func (store *Store) Get(id string) (*Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete removes the session with the given id.
func (store *Store) Delete(id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(store.sessions, id)
	return nil
}

// Len returns the number of sessions.
func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.sessions)
}
