package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ultraseeker/internal/analyzer"
	"ultraseeker/internal/classify"
	"ultraseeker/internal/config"
	"ultraseeker/internal/health"
	"ultraseeker/internal/history"
	"ultraseeker/internal/model"
	"ultraseeker/internal/storage"
)

// tickOrder fixes the classification order across modalities within one
// cycle so repeated runs produce identical ledgers.
var tickOrder = []model.Modality{model.ModalityVision, model.ModalityAudio, model.ModalityBehavior}

// Engine drives the assessment cycle: analyze per modality, classify,
// append to the ledger, summarize. The ledger and the analyzers' temporal
// windows are mutated only by cycle execution; at most one cycle runs at a
// time. Reads (summary, statistics) are served from copies and may run
// concurrently with a cycle.
type Engine struct {
	logger    *slog.Logger
	health    *health.Store
	history   *history.Store
	store     storage.Store
	cfg       atomic.Value
	cls       atomic.Value
	analyzers map[model.Modality]*analyzer.Analyzer

	sensitivity atomic.Uint64

	cycleMu sync.Mutex
	mu      sync.Mutex
	ledger  *Ledger
	lastAt  time.Time

	dedupe     *DedupeCache
	escalation *Cooldown
	started    time.Time
}

// NewEngine wires analyzers for every enabled modality. A nil entry in
// scorers (or a nil map) falls back to the deterministic SignalScorer.
func NewEngine(cfg *config.Config, logger *slog.Logger, scorers map[model.Modality]analyzer.Scorer, healthStore *health.Store, historyStore *history.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:     logger,
		health:     healthStore,
		history:    historyStore,
		store:      store,
		analyzers:  make(map[model.Modality]*analyzer.Analyzer),
		ledger:     NewLedger(cfg.Engine.LedgerCapacity),
		dedupe:     NewDedupeCache(),
		escalation: NewCooldown(),
		started:    time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	e.cls.Store(classify.New(cfg.Classifier))
	e.SetSensitivity(cfg.Engine.Sensitivity)
	for _, modality := range cfg.Modalities.Enabled() {
		mc, _ := cfg.Modalities.For(modality)
		var scorer analyzer.Scorer
		if scorers != nil {
			scorer = scorers[modality]
		}
		if scorer == nil {
			scorer = analyzer.NewSignalScorer()
		}
		e.analyzers[modality] = analyzer.New(modality, mc, scorer, healthStore, logger)
	}
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.cls.Store(classify.New(cfg.Classifier))
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) classifier() *classify.Classifier {
	return e.cls.Load().(*classify.Classifier)
}

// SetSensitivity clamps to [0,1] and applies on the next cycle.
func (e *Engine) SetSensitivity(x float64) {
	if x < 0 || math.IsNaN(x) {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	e.sensitivity.Store(math.Float64bits(x))
}

func (e *Engine) Sensitivity() float64 {
	return math.Float64frombits(e.sensitivity.Load())
}

// Start runs the cadence loop: raw inputs accumulate in a latest-wins
// mailbox per modality and each tick assesses the pending batch.
func (e *Engine) Start(ctx context.Context, in <-chan model.RawInput) {
	go func() {
		ticker := time.NewTicker(e.config().Engine.Cadence)
		defer ticker.Stop()
		pending := make(map[model.Modality]model.RawInput)
		for {
			select {
			case ev := <-in:
				pending[ev.Modality] = ev
			case <-ticker.C:
				if len(pending) == 0 {
					continue
				}
				batch := pending
				pending = make(map[model.Modality]model.RawInput)
				if _, err := e.Tick(ctx, batch); err != nil {
					if ctx.Err() != nil {
						return
					}
					if e.logger != nil {
						e.logger.Warn("cycle aborted", "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

type modalityResult struct {
	modality   model.Modality
	candidates []model.CandidateDetection
}

// Tick performs one assessment cycle. Analyzer invocations run
// concurrently and join before classification; a modality that fails or
// misses its timeout contributes nothing and never aborts the cycle. The
// append step is all-or-nothing: a context cancelled before it leaves the
// ledger untouched.
func (e *Engine) Tick(ctx context.Context, inputs map[model.Modality]model.RawInput) (model.Assessment, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := e.config()
	now := time.Now().UTC()

	results := make(chan modalityResult, len(e.analyzers))
	launched := 0
	for modality, a := range e.analyzers {
		input, ok := inputs[modality]
		if !ok {
			continue
		}
		if e.isDuplicate(input, cfg.Engine.DedupeWindow) {
			continue
		}
		mc, _ := cfg.Modalities.For(modality)
		launched++
		go e.invoke(ctx, a, input, mc.Timeout, results)
	}

	byModality := make(map[model.Modality][]model.CandidateDetection, launched)
	for i := 0; i < launched; i++ {
		r := <-results
		byModality[r.modality] = r.candidates
	}

	cls := e.classifier()
	detections := make([]model.Detection, 0)
	for _, modality := range tickOrder {
		for _, c := range byModality[modality] {
			if !e.accept(cls, c) {
				continue
			}
			detections = append(detections, model.Detection{
				Timestamp:   now,
				Modality:    modality,
				Category:    c.Category,
				Confidence:  c.Confidence,
				Severity:    cls.Classify(c.Category, c.Confidence),
				Region:      c.Region,
				Description: classify.Describe(c.Category, c.Confidence),
				Evidence:    c.Evidence,
			})
		}
	}

	e.mu.Lock()
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return model.Assessment{}, err
	}
	for _, d := range detections {
		e.ledger.Append(d)
	}
	e.lastAt = now
	slice := e.ledger.Window(cfg.Engine.SummaryWindow, now)
	ever := e.ledger.EverPopulated()
	e.mu.Unlock()

	summary := Summarize(slice, ever)
	if summary.Overall >= model.SeverityOrange && e.escalation.Allow(summary.Overall, cfg.Engine.EscalationCooldown) {
		if e.logger != nil {
			e.logger.Warn("threat escalation",
				"overall", summary.Overall.String(),
				"active_threats", summary.ActiveThreats,
				"confidence", summary.Confidence,
			)
		}
	}

	assessment := model.Assessment{Timestamp: now, Summary: summary, Detections: detections}
	if e.history != nil {
		e.history.Add(assessment)
	}
	if e.store != nil {
		if err := e.store.SaveDetections(ctx, detections); err != nil && e.logger != nil {
			e.logger.Warn("persist detections failed", "err", err)
		}
		if err := e.store.SaveAssessment(ctx, assessment); err != nil && e.logger != nil {
			e.logger.Warn("persist assessment failed", "err", err)
		}
	}
	return assessment, nil
}

func (e *Engine) invoke(ctx context.Context, a *analyzer.Analyzer, input model.RawInput, timeout time.Duration, results chan<- modalityResult) {
	actx := ctx
	cancel := func() {}
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	done := make(chan []model.CandidateDetection, 1)
	go func() {
		done <- a.Analyze(actx, input)
	}()
	select {
	case candidates := <-done:
		results <- modalityResult{a.Modality(), candidates}
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			if e.logger != nil {
				e.logger.Warn("analyzer timeout, degrading to empty result",
					"modality", a.Modality(),
					"timeout", timeout,
				)
			}
			if e.health != nil {
				e.health.RecordTimeout(a.Modality())
			}
		}
		results <- modalityResult{a.Modality(), nil}
	}
}

// accept applies the sensitivity-adjusted acceptance threshold. Rejected
// candidates never reach the classifier or the ledger.
func (e *Engine) accept(cls *classify.Classifier, c model.CandidateDetection) bool {
	threshold := cls.Threshold(c.Category) - 0.2*(e.Sensitivity()-0.5)
	if threshold < 0.05 {
		threshold = 0.05
	}
	if threshold > 0.99 {
		threshold = 0.99
	}
	return c.Confidence > threshold
}

// CurrentSummary summarizes the configured window as of now, without
// running a cycle.
func (e *Engine) CurrentSummary() model.Summary {
	cfg := e.config()
	now := time.Now().UTC()
	e.mu.Lock()
	slice := e.ledger.Window(cfg.Engine.SummaryWindow, now)
	ever := e.ledger.EverPopulated()
	e.mu.Unlock()
	return Summarize(slice, ever)
}

// Statistics reports the severity distribution across the full ledger.
func (e *Engine) Statistics() model.Statistics {
	e.mu.Lock()
	snapshot := e.ledger.Snapshot()
	lastAt := e.lastAt
	e.mu.Unlock()

	stats := model.Statistics{
		BySeverity:     make(map[string]int, 5),
		LastAssessment: lastAt,
	}
	for sev := model.SeverityGreen; sev <= model.SeverityOmega; sev++ {
		stats.BySeverity[sev.String()] = 0
	}
	sum := 0.0
	for _, d := range snapshot {
		stats.BySeverity[d.Severity.String()]++
		sum += d.Confidence
	}
	stats.TotalDetections = len(snapshot)
	if len(snapshot) > 0 {
		stats.MeanConfidence = sum / float64(len(snapshot))
	}
	return stats
}

func (e *Engine) Reset() {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	e.mu.Lock()
	e.ledger.Clear()
	e.lastAt = time.Time{}
	e.mu.Unlock()
	e.dedupe = NewDedupeCache()
	e.escalation = NewCooldown()
	for _, a := range e.analyzers {
		a.Reset()
	}
}

func (e *Engine) isDuplicate(input model.RawInput, dedupeWindow time.Duration) bool {
	if dedupeWindow <= 0 || input.SequenceID == "" {
		return false
	}
	key := hashInput(input)
	seen := e.dedupe.Seen(key, time.Now().UTC(), dedupeWindow)
	if seen && e.logger != nil {
		e.logger.Debug("duplicate raw input dropped",
			"modality", input.Modality,
			"sequence_id", input.SequenceID,
		)
	}
	return seen
}

func hashInput(input model.RawInput) string {
	parts := []string{
		string(input.Modality),
		input.SequenceID,
		input.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
