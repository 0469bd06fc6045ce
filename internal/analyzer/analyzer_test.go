package analyzer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ultraseeker/internal/config"
	"ultraseeker/internal/health"
	"ultraseeker/internal/logging"
	"ultraseeker/internal/model"
)

func visionConfig() config.ModalityConfig {
	return config.ModalityConfig{Enabled: true, WindowCapacity: 10, MinReady: 5, Timeout: 100 * time.Millisecond}
}

func input(seq string) model.RawInput {
	return model.RawInput{
		Timestamp:  time.Now().UTC(),
		Modality:   model.ModalityVision,
		SequenceID: seq,
		Signals:    map[string]float64{"weapon_firearm": 0.95},
	}
}

func TestAnalyzePushesWindowAndScores(t *testing.T) {
	a := New(model.ModalityVision, visionConfig(), NewSignalScorer(), nil, nil)
	got := a.Analyze(context.Background(), input("f1"))
	if len(got) != 1 || got[0].Category != model.CategoryWeaponFirearm {
		t.Fatalf("candidates = %+v", got)
	}
	if a.WindowLen() != 1 {
		t.Fatalf("window len = %d", a.WindowLen())
	}
}

func TestAnalyzeFailureDegradesToEmpty(t *testing.T) {
	healthStore := health.NewStore(10)
	failing := ScorerFunc(func(context.Context, model.RawInput, []model.RawInput) ([]model.CandidateDetection, error) {
		return nil, errors.New("model unavailable")
	})
	var logs bytes.Buffer
	a := New(model.ModalityVision, visionConfig(), failing, healthStore, logging.NewLoggerTo(&logs, "warn"))
	if got := a.Analyze(context.Background(), input("f1")); got != nil {
		t.Fatalf("expected nil candidates, got %+v", got)
	}
	h, ok := healthStore.Get(model.ModalityVision)
	if !ok || h.Failures != 1 || h.LastError != "model unavailable" {
		t.Fatalf("health not recorded: %+v", h)
	}
	if !strings.Contains(logs.String(), "model unavailable") {
		t.Fatalf("failure not logged: %s", logs.String())
	}
}

func TestAnalyzeRecoversScorerPanic(t *testing.T) {
	panicky := ScorerFunc(func(context.Context, model.RawInput, []model.RawInput) ([]model.CandidateDetection, error) {
		panic("inference blew up")
	})
	a := New(model.ModalityVision, visionConfig(), panicky, nil, nil)
	if got := a.Analyze(context.Background(), input("f1")); got != nil {
		t.Fatalf("expected nil candidates after panic, got %+v", got)
	}
	// analyzer still functional afterwards
	if a.WindowLen() != 1 {
		t.Fatalf("window len = %d", a.WindowLen())
	}
}

func TestBehaviorGatedUntilWindowReady(t *testing.T) {
	cfg := config.ModalityConfig{Enabled: true, WindowCapacity: 10, MinReady: 5}
	a := New(model.ModalityBehavior, cfg, NewSignalScorer(), nil, nil)
	behavior := model.RawInput{
		Modality: model.ModalityBehavior,
		Signals:  map[string]float64{"erratic_movement": 0.8},
	}
	for i := 0; i < 4; i++ {
		if got := a.Analyze(context.Background(), behavior); got != nil {
			t.Fatalf("candidates before window ready: %+v", got)
		}
	}
	if got := a.Analyze(context.Background(), behavior); len(got) != 1 {
		t.Fatalf("expected candidates at min_ready, got %+v", got)
	}
}

func TestSignalScorerDeterministicOrder(t *testing.T) {
	in := model.RawInput{Signals: map[string]float64{
		"weapon_knife":   0.9,
		"blood":          0.8,
		"fire_smoke":     0.85,
		"weapon_firearm": 0.95,
	}}
	scorer := NewSignalScorer()
	first, err := scorer.Score(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := scorer.Score(context.Background(), in, nil)
		for j := range first {
			if again[j].Category != first[j].Category {
				t.Fatalf("order changed between runs: %+v vs %+v", first, again)
			}
		}
	}
}

func TestSignalScorerRejectsOutOfRange(t *testing.T) {
	scorer := NewSignalScorer()
	_, err := scorer.Score(context.Background(), model.RawInput{Signals: map[string]float64{"blood": 1.5}}, nil)
	if err == nil {
		t.Fatalf("expected range error")
	}
}

func TestSignalScorerRegionPassthrough(t *testing.T) {
	in := model.RawInput{
		Data:    []byte(`{"region":{"x":10,"y":20,"w":100,"h":200}}`),
		Signals: map[string]float64{"weapon_firearm": 0.9},
	}
	got, err := NewSignalScorer().Score(context.Background(), in, nil)
	if err != nil || len(got) != 1 {
		t.Fatalf("score: %v %+v", err, got)
	}
	if got[0].Region == nil || got[0].Region.W != 100 {
		t.Fatalf("region not decoded: %+v", got[0].Region)
	}
}
