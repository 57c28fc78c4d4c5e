package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestKeyValues(t *testing.T) {
	log, logs := observed()
	log.With("stage", "elections").Info("stage finished", "created", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stage finished", entry.Message)
	assert.Equal(t, map[string]interface{}{"stage": "elections", "created": int64(3)}, entry.ContextMap())
}

func TestTiming(t *testing.T) {
	log, logs := observed()
	done := log.Timing("export")
	done()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "starting", logs.All()[0].Message)
	assert.Equal(t, "completed", logs.All()[1].Message)
	assert.Contains(t, logs.All()[1].ContextMap(), "took")
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		log, err := New(mode)
		require.NoError(t, err, mode)
		log.Debug("ok")
	}
	Nop().Info("discarded")
}
