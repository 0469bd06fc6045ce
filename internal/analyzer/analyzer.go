package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ultraseeker/internal/config"
	"ultraseeker/internal/health"
	"ultraseeker/internal/model"
)

// Scorer produces candidate detections from one raw input plus the recent
// input sequence. The real scoring (neural inference) lives outside this
// process; implementations here adapt whatever signal source is wired in.
type Scorer interface {
	Score(ctx context.Context, input model.RawInput, window []model.RawInput) ([]model.CandidateDetection, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, input model.RawInput, window []model.RawInput) ([]model.CandidateDetection, error)

func (f ScorerFunc) Score(ctx context.Context, input model.RawInput, window []model.RawInput) ([]model.CandidateDetection, error) {
	return f(ctx, input, window)
}

// Analyzer runs one modality. It owns a private temporal window of raw
// inputs and never lets a scorer failure escape: a failed cycle yields an
// empty candidate list, which means "no information", not "threat cleared".
type Analyzer struct {
	modality model.Modality
	minReady int
	scorer   Scorer
	health   *health.Store
	logger   *slog.Logger

	// mu serializes Analyze so an invocation abandoned by a cycle timeout
	// cannot race the next cycle over the window.
	mu     sync.Mutex
	window *Window[model.RawInput]

	// sequence-gated analyzers stay silent until the window is warm
	requireReady bool
}

func New(modality model.Modality, cfg config.ModalityConfig, scorer Scorer, healthStore *health.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		modality:     modality,
		window:       NewWindow[model.RawInput](cfg.WindowCapacity),
		minReady:     cfg.MinReady,
		scorer:       scorer,
		health:       healthStore,
		logger:       logger,
		requireReady: modality == model.ModalityBehavior,
	}
}

func (a *Analyzer) Modality() model.Modality {
	return a.modality
}

// WindowLen is the current temporal-window depth.
func (a *Analyzer) WindowLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window.Len()
}

// Reset discards the buffered input sequence.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = NewWindow[model.RawInput](a.window.Cap())
}

// Analyze pushes the input into the temporal window and scores it. It
// returns nil on any internal failure; the error is logged and counted on
// the health channel, never raised.
func (a *Analyzer) Analyze(ctx context.Context, input model.RawInput) []model.CandidateDetection {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window.Push(input)
	if a.requireReady && !a.window.Ready(a.minReady) {
		a.recordInvocation(0)
		return nil
	}
	candidates, err := a.score(ctx, input)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("analyzer failure, degrading to empty result",
				"modality", a.modality,
				"err", err,
			)
		}
		if a.health != nil {
			a.health.RecordFailure(a.modality, err)
		}
		return nil
	}
	a.recordInvocation(len(candidates))
	return candidates
}

func (a *Analyzer) recordInvocation(candidates int) {
	if a.health != nil {
		a.health.RecordInvocation(a.modality, candidates, a.window.Len())
	}
}

func (a *Analyzer) score(ctx context.Context, input model.RawInput) (candidates []model.CandidateDetection, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	if a.scorer == nil {
		return nil, nil
	}
	return a.scorer.Score(ctx, input, a.window.Snapshot())
}
