package httputil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caregate/caregate/pkg/contextkeys"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/appointments", nil)
	ctx := contextkeys.WithRequestID(r.Context(), "req-1")
	ctx = context.WithValue(ctx, contextkeys.RequestStartTimeKey, time.Now().Add(-5*time.Millisecond))
	r = r.WithContext(ctx)

	if err := WriteData(rec, r, 200, map[string]string{"status": "booked"}); err != nil {
		t.Fatalf("WriteData: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success should be true")
	}
	data := body["data"].(map[string]interface{})
	if data["status"] != "booked" {
		t.Errorf("data.status = %v", data["status"])
	}
	meta := body["meta"].(map[string]interface{})
	if meta["requestId"] != "req-1" {
		t.Errorf("meta.requestId = %v", meta["requestId"])
	}
	if _, ok := meta["timestamp"]; !ok {
		t.Error("meta.timestamp missing")
	}
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteRateLimited(rec, 90*time.Second, "Too many login attempts"); err != nil {
		t.Fatalf("WriteRateLimited: %v", err)
	}

	if rec.Code != 429 {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Errorf("Retry-After = %q, want 90", got)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Error("success should be false")
	}
	if body["code"] != string(CodeRateLimited) {
		t.Errorf("code = %v, want %s", body["code"], CodeRateLimited)
	}
	if body["retryAfter"] != float64(90) {
		t.Errorf("retryAfter = %v, want 90", body["retryAfter"])
	}
}

func TestWriteRateLimited_SubSecondRoundsUp(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimited(rec, 300*time.Millisecond, "slow down")
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name   string
		write  func(rec *httptest.ResponseRecorder) error
		status int
		code   ErrorCode
	}{
		{"ip blocked", func(rec *httptest.ResponseRecorder) error { return WriteIPBlocked(rec) }, 403, CodeIPBlocked},
		{"input rejected", func(rec *httptest.ResponseRecorder) error { return WriteInputRejected(rec) }, 400, CodeInputRejected},
		{"unauthenticated", func(rec *httptest.ResponseRecorder) error { return WriteUnauthenticated(rec) }, 401, CodeUnauthenticated},
		{"forbidden", func(rec *httptest.ResponseRecorder) error { return WriteForbidden(rec) }, 403, CodeForbidden},
		{"not verified", func(rec *httptest.ResponseRecorder) error { return WriteNotVerified(rec) }, 403, CodeNotVerified},
		{"internal", func(rec *httptest.ResponseRecorder) error { return WriteInternalError(rec) }, 500, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := tc.write(rec); err != nil {
				t.Fatalf("write: %v", err)
			}
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
			body := decodeBody(t, rec)
			if body["code"] != string(tc.code) {
				t.Errorf("code = %v, want %s", body["code"], tc.code)
			}
			if body["success"] != false {
				t.Error("success should be false")
			}
			if _, ok := body["retryAfter"]; ok {
				t.Error("retryAfter should be omitted when zero")
			}
		})
	}
}
