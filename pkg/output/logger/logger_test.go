package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ericogr/ac-carrier-monitor/pkg/stats"
)

func TestLogPublish(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogger(zerolog.New(&buf))
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	if err := o.Publish(stats.Summary{Start: ts.Add(-time.Second), End: ts, Samples: 3, MeanFrequency: 60, MeanMax: 3, MeanMin: 0.3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["message"] != "carrier stats" || line["avg_frequency_hz"] != 60.0 || line["samples"] != 3.0 {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestLogPublishEmpty(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogger(zerolog.New(&buf))
	if err := o.Publish(stats.Summary{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["message"] != "no samples collected yet" {
		t.Fatalf("unexpected line: %v", line)
	}
}
