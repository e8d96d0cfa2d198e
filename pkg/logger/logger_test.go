package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: DEBUG, Format: JSON, Output: &buf, Service: "allocation"})

	log.Debug("claimed step", "step_id", "s-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry[SERVICE] != "allocation" {
		t.Errorf("expected service attr 'allocation', got %v", entry[SERVICE])
	}
	if entry["step_id"] != "s-1" {
		t.Errorf("expected step_id attr 's-1', got %v", entry["step_id"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	log.Warn("kept")
	if buf.Len() == 0 {
		t.Errorf("warn should pass at warn level")
	}
}

func TestWith_AddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf}).With("request_id", "r-9")

	log.Info("dispatch")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["request_id"] != "r-9" {
		t.Errorf("expected request_id attr, got %v", entry["request_id"])
	}
}
