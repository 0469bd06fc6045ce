package ingest

import (
	"context"
	"log/slog"
	"time"

	"ultraseeker/internal/model"
)

// SendNonBlocking drops rather than blocks when the input channel is full:
// a stalled engine must never back-pressure capture sources into the past.
func SendNonBlocking(ctx context.Context, out chan<- model.RawInput, input model.RawInput, logger *slog.Logger) bool {
	select {
	case out <- input:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("input channel full, dropping raw input",
				"modality", input.Modality,
				"sequence_id", input.SequenceID,
			)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
