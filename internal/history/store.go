package history

import (
	"sync"
	"time"

	"ultraseeker/internal/model"
)

// Store is a bounded in-memory history of assessments for the API surface.
// Oldest entries fall off first once the limit is reached.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Assessment
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(a model.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, a)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = a
}

func (s *Store) Latest() (model.Assessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) == 0 {
		return model.Assessment{}, false
	}
	return s.buf[len(s.buf)-1], true
}

func (s *Store) List(limit int) []model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Assessment, 0, limit)
	start := len(s.buf) - limit
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Assessment, 0)
	for _, a := range s.buf {
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
