package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestAudit(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	t.Cleanup(func() { GetAuditLogger().Close() })
	return path
}

func TestAuditLogger_RecordWritesJSONLine(t *testing.T) {
	path := initTestAudit(t)

	GetAuditLogger().Record(AuditEvent{
		Type:   "ledger",
		Actor:  "12345678901",
		Action: "customers_update_score",
		Status: "success",
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"type":"ledger"`)
	assert.Contains(t, out, `"actor":"12345678901"`)
	assert.Contains(t, out, `"action":"customers_update_score"`)
	assert.Contains(t, out, `"status":"success"`)
}

func TestAuditHelpers_RecordTypedEvents(t *testing.T) {
	path := initTestAudit(t)

	RecordAuthAudit("12345678901", "failure", map[string]interface{}{"attempt": 1})
	RecordLedgerAudit("increase_request_append", "12345678901", "success", nil)
	RecordConversationAudit("session-1", "created", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"type":"auth"`)
	assert.Contains(t, out, `"action":"auth_attempt"`)
	assert.Contains(t, out, `"status":"failure"`)
	assert.Contains(t, out, `"attempt":1`)
	assert.Contains(t, out, `"type":"ledger"`)
	assert.Contains(t, out, `"type":"conversation"`)
	assert.Contains(t, out, `"actor":"session-1"`)
}
