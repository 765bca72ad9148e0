package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestSetGlobalLogLevel(t *testing.T) {
	t.Cleanup(func() { SetGlobalLogLevel("info") })

	SetGlobalLogLevel("warn")
	assert.False(t, Zap().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Zap().Core().Enabled(zapcore.WarnLevel))

	SetGlobalLogLevel("debug")
	assert.True(t, Zap().Core().Enabled(zapcore.DebugLevel))

	assert.NotPanics(t, func() {
		Debugf("level is %s", "debug")
		Info("info line")
		Sync()
	})
}

func TestSetGlobalLogLevel_ReachesDerivedLoggers(t *testing.T) {
	t.Cleanup(func() { SetGlobalLogLevel("info") })

	SetGlobalLogLevel("info")
	injected := Zap().Named("scheduler")
	assert.False(t, injected.Core().Enabled(zapcore.DebugLevel))

	SetGlobalLogLevel("debug")
	assert.True(t, injected.Core().Enabled(zapcore.DebugLevel))
}
