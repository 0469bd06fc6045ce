package normalize

import (
	"encoding/base64"
	"testing"
	"time"

	"ultraseeker/internal/config"
	"ultraseeker/internal/model"
)

func TestNormalizeDefaultsModality(t *testing.T) {
	cfg := config.DefaultConfig()
	got, err := Normalize(InputFields{Signals: map[string]float64{"blood": 0.5}}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Modality != model.ModalityVision {
		t.Fatalf("modality = %v, want default vision", got.Modality)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("timestamp not defaulted")
	}
}

func TestNormalizeRejectsUnknownModality(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := Normalize(InputFields{Modality: "thermal"}, cfg); err == nil {
		t.Fatalf("expected modality error")
	}
}

func TestNormalizeRejectsOutOfRangeSignal(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := Normalize(InputFields{
		Modality: "audio",
		Signals:  map[string]float64{"aggressive_speech": 1.2},
	}, cfg)
	if err == nil {
		t.Fatalf("expected signal range error")
	}
}

func TestNormalizeDecodesBase64Data(t *testing.T) {
	cfg := config.DefaultConfig()
	payload := `{"region":{"x":1,"y":2,"w":3,"h":4}}`
	got, err := Normalize(InputFields{
		Modality: "vision",
		Data:     base64.StdEncoding.EncodeToString([]byte(payload)),
	}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(got.Data) != payload {
		t.Fatalf("data = %q", got.Data)
	}
}

func TestNormalizeKeepsRawJSONData(t *testing.T) {
	cfg := config.DefaultConfig()
	payload := `{"region":{"x":1,"y":2,"w":3,"h":4}}`
	got, err := Normalize(InputFields{Modality: "vision", Data: payload}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(got.Data) != payload {
		t.Fatalf("data = %q", got.Data)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2026-08-26T10:30:00Z",
		"2026-08-26T10:30:00.123Z",
		"2026-08-26 10:30:00",
		"2026-08-26T10:30:00",
	}
	for _, value := range cases {
		ts, err := ParseTimestamp(value, time.UTC)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if ts.Year() != 2026 || ts.Hour() != 10 {
			t.Fatalf("parse %q = %v", value, ts)
		}
	}
}

func TestParseTimestampUnix(t *testing.T) {
	sec, err := ParseTimestamp("1756202400", time.UTC)
	if err != nil {
		t.Fatalf("unix seconds: %v", err)
	}
	ms, err := ParseTimestamp("1756202400500", time.UTC)
	if err != nil {
		t.Fatalf("unix millis: %v", err)
	}
	if ms.Sub(sec) != 500*time.Millisecond {
		t.Fatalf("millis delta = %v", ms.Sub(sec))
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	if _, err := ParseTimestamp("not-a-time", time.UTC); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseTimestamp("", time.UTC); err == nil {
		t.Fatalf("expected error for empty value")
	}
}
