package ingest

import (
	"encoding/json"

	"ultraseeker/internal/normalize"
)

type jsonInput struct {
	Timestamp  string             `json:"timestamp"`
	Time       string             `json:"time"`
	TS         string             `json:"ts"`
	Modality   string             `json:"modality"`
	Channel    string             `json:"channel"`
	SequenceID string             `json:"sequence_id"`
	Seq        string             `json:"seq"`
	FrameID    string             `json:"frame_id"`
	Data       string             `json:"data"`
	Payload    string             `json:"payload"`
	Signals    map[string]float64 `json:"signals"`
	Scores     map[string]float64 `json:"scores"`
	Source     string             `json:"source"`
}

func ParseJSONBytes(data []byte) (*normalize.InputFields, error) {
	var obj jsonInput
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return fieldsFromJSON(obj, data), nil
}

func fieldsFromJSON(obj jsonInput, raw []byte) *normalize.InputFields {
	fields := &normalize.InputFields{
		Timestamp:  firstOf(obj.Timestamp, obj.Time, obj.TS),
		Modality:   firstOf(obj.Modality, obj.Channel),
		SequenceID: firstOf(obj.SequenceID, obj.Seq, obj.FrameID),
		Data:       firstOf(obj.Data, obj.Payload),
		Signals:    obj.Signals,
		Source:     obj.Source,
	}
	if fields.Signals == nil {
		fields.Signals = obj.Scores
	}
	if fields.Data == "" {
		// keep the raw object so region metadata survives into the scorer
		fields.Data = string(raw)
	}
	return fields
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
