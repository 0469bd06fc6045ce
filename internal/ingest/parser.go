package ingest

import (
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"

	"ultraseeker/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns one capture-node line into input fields. Lines are JSON
// payloads in steady state; CSV and plain key=value forms cover recorded
// replays and hand-fed test feeds.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.InputFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") && !strings.Contains(trim, "=") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.InputFields {
	fields := &normalize.InputFields{Signals: map[string]float64{}}
	ts, _ := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.Modality = firstNonEmpty(kv, "modality", "channel", "source_type")
	fields.SequenceID = firstNonEmpty(kv, "sequence_id", "seq", "frame_id", "chunk_id")
	fields.Data = firstNonEmpty(kv, "data", "payload")
	if fields.Timestamp == "" {
		fields.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	}

	// any remaining key with a numeric value is a per-category signal
	for key, value := range kv {
		switch key {
		case "modality", "channel", "source_type", "sequence_id", "seq",
			"frame_id", "chunk_id", "data", "payload", "timestamp", "time", "ts":
			continue
		}
		if score, err := strconv.ParseFloat(value, 64); err == nil {
			fields.Signals[key] = score
		}
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// CSVParser handles recorded replay files. With a header, named columns
// map to fields and every other numeric column becomes a category signal;
// without one, the positional form is timestamp,modality,sequence_id,
// category,score.
type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.InputFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.InputFields{Signals: map[string]float64{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
		return fields, nil
	}
	if len(record) >= 1 {
		fields.Timestamp = record[0]
	}
	if len(record) >= 2 {
		fields.Modality = record[1]
	}
	if len(record) >= 3 {
		fields.SequenceID = record[2]
	}
	if len(record) >= 5 {
		if score, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64); err == nil {
			fields.Signals[strings.TrimSpace(record[3])] = score
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "timestamp", "time", "ts", "modality", "channel", "sequence_id", "seq", "frame_id", "data":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.InputFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts":
		fields.Timestamp = value
	case "modality", "channel", "source_type":
		fields.Modality = value
	case "sequence_id", "seq", "frame_id", "chunk_id":
		fields.SequenceID = value
	case "data", "payload":
		fields.Data = value
	default:
		if score, err := strconv.ParseFloat(value, 64); err == nil {
			fields.Signals[name] = score
		}
	}
}
