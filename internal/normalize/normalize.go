package normalize

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ultraseeker/internal/config"
	"ultraseeker/internal/model"
)

// InputFields is the loosely typed shape the ingest parsers produce before
// validation. Signals map category names to scores in [0,1]; Data is a
// base64 payload (frame, audio chunk, tracker state).
type InputFields struct {
	Timestamp  string
	Modality   string
	SequenceID string
	Data       string
	Signals    map[string]float64
	Source     string
	Raw        string
}

// Normalize validates fields into a RawInput the engine accepts.
func Normalize(fields InputFields, cfg *config.Config) (model.RawInput, error) {
	modalityName := strings.TrimSpace(strings.ToLower(fields.Modality))
	if modalityName == "" {
		modalityName = cfg.Ingest.Parser.DefaultModality
	}
	modality, err := model.ParseModality(modalityName)
	if err != nil {
		return model.RawInput{}, err
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.RawInput{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	var data []byte
	if fields.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(fields.Data)
		if err != nil {
			// Capture nodes sometimes ship raw JSON payloads unencoded.
			decoded = []byte(fields.Data)
		}
		data = decoded
	}

	for name, score := range fields.Signals {
		if score < 0 || score > 1 {
			return model.RawInput{}, fmt.Errorf("signal %q out of range: %v", name, score)
		}
	}

	return model.RawInput{
		Timestamp:  ts,
		Modality:   modality,
		SequenceID: strings.TrimSpace(fields.SequenceID),
		Data:       data,
		Signals:    fields.Signals,
		Source:     fields.Source,
		Raw:        fields.Raw,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
