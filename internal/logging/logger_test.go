package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(&Config{Level: "DEBUG", JSONFormat: true})
	l.output = &buf
	return l, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestKeyValueArgsBecomeFields(t *testing.T) {
	l, buf := newBufferLogger()
	l.Info("snapshot observed", "total_value", 10000.0, "positions", 2)

	entry := lastEntry(t, buf)
	assert.Equal(t, "snapshot observed", entry.Message)
	assert.Equal(t, 10000.0, entry.Fields["total_value"])
	assert.Equal(t, float64(2), entry.Fields["positions"]) // JSON numbers decode as float64
}

func TestMessageIsNeverAFormatString(t *testing.T) {
	l, buf := newBufferLogger()
	l.Warn("drawdown 5.2% exceeds limit %!", "asset", "BTCUSDT")

	entry := lastEntry(t, buf)
	assert.Equal(t, "drawdown 5.2% exceeds limit %!", entry.Message)
	assert.Equal(t, "BTCUSDT", entry.Fields["asset"])
}

func TestStrayArgsRecordedAsDetails(t *testing.T) {
	l, buf := newBufferLogger()
	l.Debug("retrying", 3)

	entry := lastEntry(t, buf)
	assert.Equal(t, "retrying", entry.Message)
	assert.Contains(t, entry.Fields, "details")
}

func TestErrorValuesRenderAsStrings(t *testing.T) {
	l, buf := newBufferLogger()
	l.Error("cycle failed", "error", errors.New("boom"))

	entry := lastEntry(t, buf)
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "WARN", JSONFormat: true})
	l.output = &buf

	l.Debug("dropped")
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}
