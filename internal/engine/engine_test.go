package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"ultraseeker/internal/analyzer"
	"ultraseeker/internal/config"
	"ultraseeker/internal/health"
	"ultraseeker/internal/history"
	"ultraseeker/internal/model"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Modalities.Vision.MinReady = 1
	cfg.Modalities.Audio.MinReady = 1
	cfg.Modalities.Behavior.MinReady = 1
	cfg.Engine.DedupeWindow = 0
	return cfg
}

func newTestEngine(cfg *config.Config, scorers map[model.Modality]analyzer.Scorer) (*Engine, *health.Store, *history.Store) {
	healthStore := health.NewStore(10)
	historyStore := history.NewStore(100)
	return NewEngine(cfg, nil, scorers, healthStore, historyStore, nil), healthStore, historyStore
}

func visionInput(seq string, signals map[string]float64) map[model.Modality]model.RawInput {
	return map[model.Modality]model.RawInput{
		model.ModalityVision: {
			Timestamp:  time.Now().UTC(),
			Modality:   model.ModalityVision,
			SequenceID: seq,
			Signals:    signals,
		},
	}
}

func TestTickClassifiesAndAppends(t *testing.T) {
	e, _, hist := newTestEngine(testConfig(), nil)
	got, err := e.Tick(context.Background(), visionInput("f1", map[string]float64{"weapon_firearm": 0.95}))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(got.Detections) != 1 {
		t.Fatalf("detections = %+v", got.Detections)
	}
	d := got.Detections[0]
	if d.Severity != model.SeverityOmega || d.Category != model.CategoryWeaponFirearm {
		t.Fatalf("detection = %+v", d)
	}
	if got.Summary.Overall != model.SeverityOmega || got.Summary.ActiveThreats != 1 {
		t.Fatalf("summary = %+v", got.Summary)
	}
	latest, ok := hist.Latest()
	if !ok || latest.Summary.Overall != model.SeverityOmega {
		t.Fatalf("history not recorded: %v %+v", ok, latest)
	}
}

func TestTickFailingModalityDoesNotAbortCycle(t *testing.T) {
	failing := ScorerAlwaysError(errors.New("camera offline"))
	e, healthStore, _ := newTestEngine(testConfig(), map[model.Modality]analyzer.Scorer{
		model.ModalityVision: failing,
	})
	inputs := visionInput("f1", map[string]float64{"weapon_firearm": 0.95})
	inputs[model.ModalityAudio] = model.RawInput{
		Timestamp: time.Now().UTC(),
		Modality:  model.ModalityAudio,
		Signals:   map[string]float64{"aggressive_speech": 0.9},
	}
	got, err := e.Tick(context.Background(), inputs)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(got.Detections) != 1 || got.Detections[0].Modality != model.ModalityAudio {
		t.Fatalf("detections = %+v", got.Detections)
	}
	h, ok := healthStore.Get(model.ModalityVision)
	if !ok || h.Failures != 1 {
		t.Fatalf("vision failure not recorded: %+v", h)
	}
}

func ScorerAlwaysError(err error) analyzer.Scorer {
	return analyzer.ScorerFunc(func(context.Context, model.RawInput, []model.RawInput) ([]model.CandidateDetection, error) {
		return nil, err
	})
}

func TestTickSlowModalityTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Modalities.Vision.Timeout = 10 * time.Millisecond
	slow := analyzer.ScorerFunc(func(ctx context.Context, _ model.RawInput, _ []model.RawInput) ([]model.CandidateDetection, error) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []model.CandidateDetection{{Category: model.CategoryWeaponFirearm, Confidence: 0.99}}, nil
	})
	e, healthStore, _ := newTestEngine(cfg, map[model.Modality]analyzer.Scorer{
		model.ModalityVision: slow,
	})
	got, err := e.Tick(context.Background(), visionInput("f1", nil))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(got.Detections) != 0 {
		t.Fatalf("timed-out modality contributed detections: %+v", got.Detections)
	}
	h, _ := healthStore.Get(model.ModalityVision)
	if h.Timeouts == 0 && h.Failures == 0 {
		t.Fatalf("timeout not recorded: %+v", h)
	}
}

func TestTickCancelledContextLeavesLedgerUntouched(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Tick(ctx, visionInput("f1", map[string]float64{"weapon_firearm": 0.95}))
	if err == nil {
		t.Fatalf("expected context error")
	}
	stats := e.Statistics()
	if stats.TotalDetections != 0 {
		t.Fatalf("partial append after cancel: %+v", stats)
	}
}

func TestSetSensitivityClamps(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), nil)
	e.SetSensitivity(-0.3)
	if got := e.Sensitivity(); got != 0.0 {
		t.Fatalf("sensitivity = %v, want 0.0", got)
	}
	e.SetSensitivity(1.7)
	if got := e.Sensitivity(); got != 1.0 {
		t.Fatalf("sensitivity = %v, want 1.0", got)
	}
}

func TestSensitivityShiftsAcceptance(t *testing.T) {
	// weapon threshold 0.8; at sensitivity 0 the effective threshold is 0.9,
	// at sensitivity 1 it is 0.7
	e, _, _ := newTestEngine(testConfig(), nil)
	borderline := map[string]float64{"weapon_firearm": 0.85}

	e.SetSensitivity(0.0)
	got, err := e.Tick(context.Background(), visionInput("f1", borderline))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(got.Detections) != 0 {
		t.Fatalf("low sensitivity accepted 0.85: %+v", got.Detections)
	}

	e.SetSensitivity(1.0)
	got, err = e.Tick(context.Background(), visionInput("f2", borderline))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(got.Detections) != 1 {
		t.Fatalf("high sensitivity rejected 0.85: %+v", got.Detections)
	}
}

func TestDuplicateInputDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.DedupeWindow = time.Minute
	e, _, _ := newTestEngine(cfg, nil)
	ts := time.Now().UTC()
	inputs := map[model.Modality]model.RawInput{
		model.ModalityVision: {
			Timestamp:  ts,
			Modality:   model.ModalityVision,
			SequenceID: "frame-1",
			Signals:    map[string]float64{"weapon_firearm": 0.95},
		},
	}
	if _, err := e.Tick(context.Background(), inputs); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := e.Tick(context.Background(), inputs); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats := e.Statistics(); stats.TotalDetections != 1 {
		t.Fatalf("duplicate not dropped: %+v", stats)
	}
}

func TestStatisticsDistribution(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), nil)
	cases := []map[string]float64{
		{"weapon_firearm": 0.95},    // OMEGA
		{"weapon_knife": 0.85},      // RED
		{"aggressive_gesture": 0.9}, // ORANGE
		{"fire_smoke": 0.78},        // YELLOW
	}
	for i, signals := range cases {
		if _, err := e.Tick(context.Background(), visionInput(string(rune('a'+i)), signals)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	stats := e.Statistics()
	if stats.TotalDetections != 4 {
		t.Fatalf("total = %d, want 4", stats.TotalDetections)
	}
	want := map[string]int{"GREEN": 0, "YELLOW": 1, "ORANGE": 1, "RED": 1, "OMEGA": 1}
	for sev, n := range want {
		if stats.BySeverity[sev] != n {
			t.Fatalf("by_severity[%s] = %d, want %d (%+v)", sev, stats.BySeverity[sev], n, stats.BySeverity)
		}
	}
	if stats.MeanConfidence <= 0 {
		t.Fatalf("mean confidence = %v", stats.MeanConfidence)
	}
}

func TestResetClearsState(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), nil)
	if _, err := e.Tick(context.Background(), visionInput("f1", map[string]float64{"weapon_firearm": 0.95})); err != nil {
		t.Fatalf("tick: %v", err)
	}
	e.Reset()
	s := e.CurrentSummary()
	if s.Overall != model.SeverityGreen || s.ActiveThreats != 0 {
		t.Fatalf("summary after reset = %+v", s)
	}
	if s.Status != "All systems nominal - no threats detected" {
		t.Fatalf("reset must forget history: %q", s.Status)
	}
	if stats := e.Statistics(); stats.TotalDetections != 0 {
		t.Fatalf("statistics after reset = %+v", stats)
	}
}

func TestStartConsumesInputsOnCadence(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Cadence = 5 * time.Millisecond
	e, _, hist := newTestEngine(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan model.RawInput, 10)
	e.Start(ctx, in)
	in <- model.RawInput{
		Timestamp: time.Now().UTC(),
		Modality:  model.ModalityVision,
		Signals:   map[string]float64{"weapon_knife": 0.92},
	}

	deadline := time.After(2 * time.Second)
	for {
		if latest, ok := hist.Latest(); ok {
			if latest.Summary.Overall != model.SeverityOmega {
				t.Fatalf("summary = %+v", latest.Summary)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no assessment produced within deadline")
		case <-time.After(time.Millisecond):
		}
	}
}
