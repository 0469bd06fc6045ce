package engine

import (
	"fmt"

	"ultraseeker/internal/model"
)

const (
	statusNominal = "All systems nominal - no threats detected"
	statusCleared = "Recent threats cleared - maintaining watch"

	// Fixed optimistic confidence reported after known threats age out of
	// the window. A deliberate constant, not derived from the data.
	clearedConfidence = 0.95

	maxRecent = 5
)

// Summarize reduces a ledger window slice to an aggregate status. It is a
// pure function of its arguments. everPopulated separates "nothing was
// ever recorded" from "everything recorded is older than the window".
func Summarize(slice []model.Detection, everPopulated bool) model.Summary {
	if len(slice) == 0 {
		if !everPopulated {
			return model.Summary{
				Overall:       model.SeverityGreen,
				ActiveThreats: 0,
				Confidence:    0.0,
				Status:        statusNominal,
			}
		}
		return model.Summary{
			Overall:       model.SeverityGreen,
			ActiveThreats: 0,
			Confidence:    clearedConfidence,
			Status:        statusCleared,
		}
	}

	overall := model.SeverityGreen
	sum := 0.0
	for _, d := range slice {
		overall = model.MaxSeverity(overall, d.Severity)
		sum += d.Confidence
	}

	recent := slice
	if len(recent) > maxRecent {
		recent = recent[len(recent)-maxRecent:]
	}
	out := make([]model.Detection, len(recent))
	copy(out, recent)

	return model.Summary{
		Overall:       overall,
		ActiveThreats: len(slice),
		Confidence:    sum / float64(len(slice)),
		Status:        fmt.Sprintf("%d active threat(s) - %s level response", len(slice), overall),
		Recent:        out,
	}
}
