package history

import (
	"testing"
	"time"

	"ultraseeker/internal/model"
)

func assessmentAt(ts time.Time, active int) model.Assessment {
	return model.Assessment{
		Timestamp: ts,
		Summary:   model.Summary{Overall: model.SeverityGreen, ActiveThreats: active},
	}
}

func TestStoreBounded(t *testing.T) {
	s := NewStore(3)
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		s.Add(assessmentAt(now, i))
	}
	got := s.List(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []int{7, 8, 9} {
		if got[i].Summary.ActiveThreats != want {
			t.Fatalf("list[%d] = %d, want %d", i, got[i].Summary.ActiveThreats, want)
		}
	}
}

func TestStoreLatest(t *testing.T) {
	s := NewStore(10)
	if _, ok := s.Latest(); ok {
		t.Fatalf("latest on empty store")
	}
	now := time.Now().UTC()
	s.Add(assessmentAt(now, 1))
	s.Add(assessmentAt(now, 2))
	latest, ok := s.Latest()
	if !ok || latest.Summary.ActiveThreats != 2 {
		t.Fatalf("latest = %v %+v", ok, latest)
	}
}

func TestStoreListLimit(t *testing.T) {
	s := NewStore(10)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(assessmentAt(now, i))
	}
	got := s.List(2)
	if len(got) != 2 || got[0].Summary.ActiveThreats != 3 || got[1].Summary.ActiveThreats != 4 {
		t.Fatalf("list(2) = %+v", got)
	}
}

func TestStoreSince(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(assessmentAt(base.Add(-time.Hour), 1))
	s.Add(assessmentAt(base.Add(-time.Minute), 2))
	s.Add(assessmentAt(base, 3))
	got := s.Since(base.Add(-5 * time.Minute))
	if len(got) != 2 {
		t.Fatalf("since = %+v", got)
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Add(assessmentAt(time.Now().UTC(), 1))
	s.Clear()
	if got := s.List(0); len(got) != 0 {
		t.Fatalf("list after clear = %+v", got)
	}
}
