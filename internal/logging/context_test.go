package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", ActivityID(ctx))

	ctx = WithSessionID(ctx, "s-1")
	ctx = WithActivityID(ctx, "register")
	assert.Equal(t, "s-1", SessionID(ctx))
	assert.Equal(t, "register", ActivityID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithActivityID(WithSessionID(context.Background(), "s-1"), "register")
	LogWith(ctx, logger).Info("moved")

	out := buf.String()
	assert.Contains(t, out, "session_id=s-1")
	assert.Contains(t, out, "activity_id=register")
	assert.Contains(t, out, "moved")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(context.Background(), logger).Info("plain")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil))).With("component", "session")

	logger.InfoContext(WithSessionID(context.Background(), "s-9"), "opened")
	out := buf.String()
	assert.Contains(t, out, "session_id=s-9")
	assert.Contains(t, out, "component=session")

	buf.Reset()
	logger.WithGroup("g").InfoContext(context.Background(), "no ids", "k", "v")
	assert.NotContains(t, buf.String(), "session_id")
	assert.Contains(t, buf.String(), "g.k=v")
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	require.NoError(t, err)

	logger.DebugContext(WithActivityID(context.Background(), "load"), "hello")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "load", rec["activity_id"])

	_, err = New("loud", "text", &buf)
	assert.Error(t, err)
	_, err = New("info", "xml", &buf)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "": slog.LevelInfo, "WARN": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
