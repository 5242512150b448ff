package session

import (
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/kindred/pkg/metrics"
	"github.com/m-mizutani/kindred/pkg/utils/logging"
	"github.com/patrickmn/go-cache"
)

const DefaultTTL = 2 * time.Hour

// Store hands out session states and forgets sessions left idle for longer
// than its TTL. An evicted session's run is stopped.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache *cache.Cache
}

type StoreOption func(*Store)

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}

	s.cache = cache.New(s.ttl, s.ttl/4)
	s.cache.OnEvicted(func(id string, v any) {
		st, ok := v.(*State)
		if !ok {
			return
		}
		if st.Stop() {
			logging.Default().Info("stopped crawl of evicted session", "session", id)
		}
		metrics.SessionsEvicted.Inc()
	})
	return s
}

// Get returns the state of sessionID, creating it on first use. Every call
// extends the session's lifetime.
func (s *Store) Get(sessionID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st *State
	if v, ok := s.cache.Get(sessionID); ok {
		st = v.(*State)
	} else {
		st = newState(sessionID)
	}
	s.cache.Set(sessionID, st, cache.DefaultExpiration)
	return st
}

// Lookup returns the state of sessionID without creating or touching it.
func (s *Store) Lookup(sessionID string) (*State, bool) {
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// Expire forgets sessionID immediately.
func (s *Store) Expire(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(sessionID)
}

// Sessions lists the ids of live sessions in lexical order.
func (s *Store) Sessions() []string {
	items := s.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
