package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"ultraseeker/internal/model"
)

// SignalScorer turns the per-category scores carried on a raw input into
// candidate detections. It is deterministic: the same input always yields
// the same candidates, so tests and replays behave identically.
type SignalScorer struct{}

func NewSignalScorer() *SignalScorer {
	return &SignalScorer{}
}

func (s *SignalScorer) Score(_ context.Context, input model.RawInput, _ []model.RawInput) ([]model.CandidateDetection, error) {
	if len(input.Signals) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(input.Signals))
	for name := range input.Signals {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]model.CandidateDetection, 0, len(names))
	for _, name := range names {
		score := input.Signals[name]
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("signal %q out of range: %v", name, score)
		}
		candidate := model.CandidateDetection{
			Category:   model.ThreatCategory(name),
			Confidence: score,
			Evidence:   map[string]float64{"signal_score": score},
		}
		if region, ok := decodeRegion(input.Data); ok {
			candidate.Region = region
		}
		out = append(out, candidate)
	}
	return out, nil
}

// Capture nodes may attach a JSON region alongside the signal scores.
func decodeRegion(data []byte) (*model.Region, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var payload struct {
		Region *model.Region `json:"region"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Region == nil {
		return nil, false
	}
	return payload.Region, true
}
