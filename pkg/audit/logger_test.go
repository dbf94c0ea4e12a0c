package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregate/caregate/pkg/contextkeys"
)

func TestFromContext_FallsBackToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.NoError(t, logger.Log(context.Background(), &Record{}))
}

func TestFromContext_RoundTrip(t *testing.T) {
	sink := &captureLogger{}
	ctx := WithLogger(context.Background(), sink)

	err := FromContext(ctx).Log(ctx, &Record{Action: ActionAuthLogin})
	require.NoError(t, err)
	require.Len(t, sink.records, 1)
	assert.Equal(t, ActionAuthLogin, sink.records[0].Action)
}

func TestNewRecord_PopulatesRequestFields(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-abc")
	ctx = contextkeys.WithClientIP(ctx, "203.0.113.7")

	r := httptest.NewRequest("GET", "/api/prescriptions/42", nil)
	r.Header.Set("User-Agent", "portal-web/2.1")

	rec := NewRecord(ctx, r, ActionResourceRead, OutcomeSuccess)
	assert.Equal(t, "req-abc", rec.RequestID)
	assert.Equal(t, "203.0.113.7", rec.IPAddress)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/api/prescriptions/42", rec.Path)
	assert.Equal(t, "portal-web/2.1", rec.UserAgent)
	assert.WithinDuration(t, time.Now().UTC(), rec.Timestamp, time.Minute)
}

func TestNewRecord_NilRequest(t *testing.T) {
	rec := NewRecord(context.Background(), nil, ActionAdminBlockIP, OutcomeSuccess)
	assert.Empty(t, rec.Method)
	assert.Empty(t, rec.Path)
	assert.Equal(t, ActionAdminBlockIP, rec.Action)
}

func TestMultiLogger_FansOutAndJoinsErrors(t *testing.T) {
	ok := &captureLogger{}
	bad := &captureLogger{err: errors.New("disk full")}
	m := NewMultiLogger(ok, nil, bad)

	err := m.Log(context.Background(), &Record{Action: ActionResourceCreate})
	assert.Error(t, err)
	assert.Len(t, ok.records, 1, "healthy sink must still receive the record")
	assert.Len(t, bad.records, 1)
}

func TestMultiLogger_PurgeSumsCounts(t *testing.T) {
	a := &captureLogger{purged: 3}
	b := &captureLogger{purged: 4}
	m := NewMultiLogger(a, b)

	total, err := m.Purge(context.Background(), DefaultRetentionPolicy())
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}

// captureLogger is a test sink.
type captureLogger struct {
	records []*Record
	purged  int64
	err     error
}

func (c *captureLogger) Log(ctx context.Context, rec *Record) error {
	c.records = append(c.records, rec)
	return c.err
}

func (c *captureLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return c.purged, c.err
}

func (c *captureLogger) Close() error { return c.err }
