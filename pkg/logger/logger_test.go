package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLogger(buf *bytes.Buffer, opts Options) *Logger {
	opts.Output = buf
	l := New(opts)
	l.now = func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) }
	return l
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf, Options{Level: LevelInfo}).With(Component("maintainer"))

	l.Debug("hidden")
	l.Info("aggregate recomputed",
		AssignmentID("a1"),
		Aggregate(7.5),
		Latency(1500*time.Microsecond),
		Err(errors.New("boom")),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "aggregate recomputed", e["msg"])
	assert.Equal(t, "2026-03-07T10:00:00Z", e["time"])
	assert.Equal(t, "maintainer", e["component"])
	assert.Equal(t, "a1", e["assignment_id"])
	assert.Equal(t, 7.5, e["aggregate"])
	assert.Equal(t, 1.5, e["latency_ms"])
	assert.Equal(t, "boom", e["error"])
	assert.NotContains(t, e, "caller")
}

func TestLogger_CallFieldsOverrideContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf, Options{}).With(String("step", "remove"))

	l.Warn("step failed", String("step", "recompute"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "recompute", entries[0]["step"])
}

func TestLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := fixedLogger(&buf, Options{})
	child := parent.WithRequestID("req-1")

	child.Info("child")
	parent.Info("parent")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0][RequestIDKey])
	assert.NotContains(t, entries[1], RequestIDKey)
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer
	fixedLogger(&buf, Options{AddCaller: true}).Error("failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0]["caller"], "logger_test.go:")
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf, Options{Format: FormatText})

	l.Info("cascade resumed", RunID("r1"), String("note", "two words"), StatusCode(200))

	assert.Equal(t,
		`2026-03-07T10:00:00Z INFO  cascade resumed note="two words" run_id=r1 status=200`+"\n",
		buf.String())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() { l.Error("dropped", Int("n", 1)) })
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	l := fixedLogger(&buf, Options{})

	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
