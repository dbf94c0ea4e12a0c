package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/caregate/caregate/pkg/contextkeys"
)

func TestLogSink_CaptureError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(NewLogger(InfoLevel, &buf))

	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	sink.CaptureError(ctx, errors.New("boom"), map[string]string{"job": "sweep"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
	if entry["job"] != "sweep" {
		t.Errorf("job = %v, want sweep", entry["job"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
}

func TestNopSink_Discards(t *testing.T) {
	var sink ErrorSink = NopSink{}
	// Must not panic on nil tags or nil error context.
	sink.CaptureError(context.Background(), errors.New("ignored"), nil)
	sink.CaptureMessage(context.Background(), "ignored", nil)
}

func TestSinkFromConfig(t *testing.T) {
	if _, ok := SinkFromConfig("log", NewLogger(InfoLevel, &bytes.Buffer{})).(*LogSink); !ok {
		t.Error(`SinkFromConfig("log") did not return a LogSink`)
	}
	if _, ok := SinkFromConfig("none", nil).(NopSink); !ok {
		t.Error(`SinkFromConfig("none") did not return a NopSink`)
	}
}
