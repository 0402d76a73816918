package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	child := log.With(map[string]any{"chain": "0:1"})
	child.Warn("dropped message", map[string]any{"err": errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "0:1", ctx["chain"])
	assert.Equal(t, "boom", ctx["err"])
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("unknown"))
}

func TestNoopLoggerWith(t *testing.T) {
	var l Logger = NoopLogger{}
	assert.Equal(t, NoopLogger{}, l.With(map[string]any{"a": 1}))
}
