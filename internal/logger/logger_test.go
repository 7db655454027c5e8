package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"dev", "development", "production", "prod", ""} {
		log := New(env)
		assert.NotNil(t, log, "env %q", env)
	}
}

func TestProductionLoggerDisablesDebug(t *testing.T) {
	log := New("production")
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}
