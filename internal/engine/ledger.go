package engine

import (
	"time"

	"ultraseeker/internal/model"
)

// Ledger is a fixed-capacity FIFO ring of classified detections in arrival
// order. Detections are never edited in place; eviction only removes the
// oldest entry. The ledger never expires entries by age on its own — only
// Window filters by age, at read time.
type Ledger struct {
	buf   []model.Detection
	head  int
	size  int
	total uint64
}

func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ledger{buf: make([]model.Detection, capacity)}
}

// Append adds in O(1), evicting the oldest detection once at capacity.
func (l *Ledger) Append(d model.Detection) {
	tail := (l.head + l.size) % len(l.buf)
	l.buf[tail] = d
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}
	l.total++
}

func (l *Ledger) Len() int {
	return l.size
}

func (l *Ledger) Cap() int {
	return len(l.buf)
}

// EverPopulated distinguishes a ledger that has never seen a detection
// from one whose recent window merely came up empty.
func (l *Ledger) EverPopulated() bool {
	return l.total > 0
}

// Window returns the ordered subsequence with timestamps in [now-d, now].
func (l *Ledger) Window(d time.Duration, now time.Time) []model.Detection {
	cutoff := now.Add(-d)
	out := make([]model.Detection, 0)
	for i := 0; i < l.size; i++ {
		det := l.buf[(l.head+i)%len(l.buf)]
		if det.Timestamp.Before(cutoff) || det.Timestamp.After(now) {
			continue
		}
		out = append(out, det)
	}
	return out
}

// Snapshot copies every stored detection oldest-first.
func (l *Ledger) Snapshot() []model.Detection {
	out := make([]model.Detection, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

func (l *Ledger) Clear() {
	l.head = 0
	l.size = 0
	l.total = 0
}
