package model

import (
	"fmt"
	"time"
)

// Severity is the response-urgency tier assigned to a classified detection.
// Ordering is by ordinal value, never by the textual name.
type Severity int

const (
	SeverityGreen Severity = iota
	SeverityYellow
	SeverityOrange
	SeverityRed
	SeverityOmega
)

var severityNames = [...]string{
	SeverityGreen:  "GREEN",
	SeverityYellow: "YELLOW",
	SeverityOrange: "ORANGE",
	SeverityRed:    "RED",
	SeverityOmega:  "OMEGA",
}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("SEVERITY(%d)", int(s))
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("severity must be a string: %s", data)
	}
	parsed, err := ParseSeverity(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityGreen, fmt.Errorf("unknown severity: %q", name)
}

// MaxSeverity compares by ordinal, not by name.
func MaxSeverity(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

type Modality string

const (
	ModalityVision   Modality = "vision"
	ModalityAudio    Modality = "audio"
	ModalityBehavior Modality = "behavior"
)

func ParseModality(name string) (Modality, error) {
	switch Modality(name) {
	case ModalityVision, ModalityAudio, ModalityBehavior:
		return Modality(name), nil
	}
	return "", fmt.Errorf("unknown modality: %q", name)
}

// ThreatCategory identifies what a candidate detection claims to have seen.
// The category names are open-ended data; which categories count as
// weapon-class or aggressive-class is configuration.
type ThreatCategory string

const (
	CategoryWeaponFirearm     ThreatCategory = "weapon_firearm"
	CategoryWeaponKnife       ThreatCategory = "weapon_knife"
	CategoryAggressiveGesture ThreatCategory = "aggressive_gesture"
	CategoryRunningEscape     ThreatCategory = "running_escape"
	CategoryGroupFormation    ThreatCategory = "group_formation"
	CategorySuspiciousObject  ThreatCategory = "suspicious_object"
	CategoryFireSmoke         ThreatCategory = "fire_smoke"
	CategoryBrokenGlass       ThreatCategory = "broken_glass"
	CategoryBlood             ThreatCategory = "blood"
	CategoryErraticMovement   ThreatCategory = "erratic_movement"
	CategoryAggressiveSpeech  ThreatCategory = "aggressive_speech"
)

// Region locates a detection within a frame. Audio detections carry none.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// RawInput is one per-cycle payload for a single modality, produced by an
// external capture/inference system. Signals carry per-category scores the
// capture side already computed; Data is the opaque payload (frame, chunk).
type RawInput struct {
	Timestamp  time.Time          `json:"timestamp"`
	Modality   Modality           `json:"modality"`
	SequenceID string             `json:"sequence_id,omitempty"`
	Data       []byte             `json:"data,omitempty"`
	Signals    map[string]float64 `json:"signals,omitempty"`
	Source     string             `json:"source,omitempty"`
	Raw        string             `json:"raw,omitempty"`
}

// CandidateDetection is an analyzer result before severity assignment.
type CandidateDetection struct {
	Category   ThreatCategory     `json:"category"`
	Confidence float64            `json:"confidence"`
	Region     *Region            `json:"region,omitempty"`
	Evidence   map[string]float64 `json:"evidence,omitempty"`
}

// Detection is a classified candidate. Severity is the classifier's output
// for (Category, Confidence) at creation time and is never recomputed.
type Detection struct {
	Timestamp   time.Time          `json:"timestamp"`
	Modality    Modality           `json:"modality"`
	Category    ThreatCategory     `json:"category"`
	Confidence  float64            `json:"confidence"`
	Severity    Severity           `json:"severity"`
	Region      *Region            `json:"region,omitempty"`
	Description string             `json:"description"`
	Evidence    map[string]float64 `json:"evidence,omitempty"`
}

// Summary is the rolling aggregate over the assessment window.
type Summary struct {
	Overall       Severity    `json:"overall_threat_level"`
	ActiveThreats int         `json:"active_threats"`
	Confidence    float64     `json:"confidence"`
	Status        string      `json:"status"`
	Recent        []Detection `json:"threats,omitempty"`
}

// Assessment is the output of one engine cycle.
type Assessment struct {
	Timestamp  time.Time   `json:"timestamp"`
	Summary    Summary     `json:"summary"`
	Detections []Detection `json:"detections,omitempty"`
}

// Statistics describes the full ledger history.
type Statistics struct {
	BySeverity      map[string]int `json:"by_severity"`
	TotalDetections int            `json:"total_detections"`
	MeanConfidence  float64        `json:"mean_confidence"`
	LastAssessment  time.Time      `json:"last_assessment"`
}
