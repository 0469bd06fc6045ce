package analyzer

// Window is a fixed-capacity FIFO ring buffer of recent raw inputs. Each
// analyzer owns exactly one; nothing else writes to it.
type Window[T any] struct {
	buf   []T
	head  int
	size  int
	total uint64
}

func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push appends in O(1), evicting the oldest entry once full.
func (w *Window[T]) Push(item T) {
	tail := (w.head + w.size) % len(w.buf)
	w.buf[tail] = item
	if w.size < len(w.buf) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.buf)
	}
	w.total++
}

func (w *Window[T]) Len() int {
	return w.size
}

func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Total counts every push ever, including evicted entries.
func (w *Window[T]) Total() uint64 {
	return w.total
}

// Ready reports whether enough inputs are buffered for sequence analysis.
func (w *Window[T]) Ready(min int) bool {
	return w.size >= min
}

// Snapshot returns the buffered entries oldest-first as a copy, never a
// live view of the ring.
func (w *Window[T]) Snapshot() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
