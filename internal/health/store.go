package health

import (
	"sync"
	"time"

	"ultraseeker/internal/model"
)

// ModalityHealth is the explicit health channel for one analyzer: the only
// way callers can tell "silent because nothing happened" apart from
// "silent because it failed".
type ModalityHealth struct {
	Modality    model.Modality `json:"modality"`
	Invocations uint64         `json:"invocations"`
	Candidates  uint64         `json:"candidates"`
	Failures    uint64         `json:"failures"`
	Timeouts    uint64         `json:"timeouts"`
	WindowLen   int            `json:"window_len"`
	LastError   string         `json:"last_error,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Store keeps bounded per-modality analyzer health. The limit only matters
// if a deployment registers many logical modalities; eviction drops the
// stalest entry, as for any steady-state capacity event.
type Store struct {
	mu         sync.RWMutex
	byModality map[model.Modality]*ModalityHealth
	limit      int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 100
	}
	return &Store{
		byModality: make(map[model.Modality]*ModalityHealth),
		limit:      limit,
	}
}

func (s *Store) RecordInvocation(modality model.Modality, candidates int, windowLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.entry(modality)
	h.Invocations++
	h.Candidates += uint64(candidates)
	h.WindowLen = windowLen
	h.UpdatedAt = time.Now().UTC()
}

func (s *Store) RecordFailure(modality model.Modality, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.entry(modality)
	h.Failures++
	if err != nil {
		h.LastError = err.Error()
	}
	h.UpdatedAt = time.Now().UTC()
}

func (s *Store) RecordTimeout(modality model.Modality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.entry(modality)
	h.Timeouts++
	h.LastError = "analyzer timeout"
	h.UpdatedAt = time.Now().UTC()
}

func (s *Store) Get(modality model.Modality) (ModalityHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byModality[modality]
	if !ok {
		return ModalityHealth{}, false
	}
	return *h, true
}

func (s *Store) GetAll() []ModalityHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModalityHealth, 0, len(s.byModality))
	for _, h := range s.byModality {
		out = append(out, *h)
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byModality = make(map[model.Modality]*ModalityHealth)
}

func (s *Store) entry(modality model.Modality) *ModalityHealth {
	h, ok := s.byModality[modality]
	if !ok {
		if len(s.byModality) >= s.limit {
			s.evictStalest()
		}
		h = &ModalityHealth{Modality: modality}
		s.byModality[modality] = h
	}
	return h
}

func (s *Store) evictStalest() {
	var stalest model.Modality
	var oldest time.Time
	first := true
	for modality, h := range s.byModality {
		if first || h.UpdatedAt.Before(oldest) {
			stalest = modality
			oldest = h.UpdatedAt
			first = false
		}
	}
	if !first {
		delete(s.byModality, stalest)
	}
}
