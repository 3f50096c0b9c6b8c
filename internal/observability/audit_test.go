package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRecord(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(&buf)

	audit.Record(context.Background(), AuditEvent{
		Action:   AuditSessionCreated,
		Session:  "abc",
		Location: "s3://abc/",
		Status:   "success",
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "session.created", got["action"])
	assert.Equal(t, "abc", got["session"])
	assert.Equal(t, "s3://abc/", got["location"])
	assert.NotEmpty(t, got["timestamp"])
	assert.NotContains(t, got, "remote")
}

func TestAuditLoggerNil(t *testing.T) {
	var audit *AuditLogger
	assert.NotPanics(t, func() {
		audit.Record(context.Background(), AuditEvent{Action: AuditSessionTerminated})
	})
	assert.NoError(t, audit.Close())
}

func TestOpenAuditLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")

	for i := 0; i < 2; i++ {
		audit, err := OpenAuditLog(path)
		require.NoError(t, err)
		audit.Record(context.Background(), AuditEvent{Action: AuditSessionCreated, Session: "s", Status: "success"})
		require.NoError(t, audit.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}
