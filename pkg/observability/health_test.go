package observability

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthChecker_LivenessAlwaysOK(t *testing.T) {
	checker := NewHealthChecker(nil, nil)
	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest("GET", "/health/live", nil))

	if rec.Code != 200 {
		t.Fatalf("liveness status = %d, want 200", rec.Code)
	}
}

func TestHealthChecker_ReadinessHealthyRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(client, nil)
	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

	if rec.Code != 200 {
		t.Fatalf("readiness status = %d, want 200", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", status.Status, StatusHealthy)
	}
	if status.Dependencies["redis"].Status != StatusHealthy {
		t.Errorf("redis status = %s, want %s", status.Dependencies["redis"].Status, StatusHealthy)
	}
}

func TestHealthChecker_RedisDownIsDegradedNotUnhealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	checker := NewHealthChecker(client, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Fatalf("status = %s, want %s", status.Status, StatusDegraded)
	}

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != 200 {
		t.Fatalf("degraded readiness status = %d, want 200 (still serving)", rec.Code)
	}
}
