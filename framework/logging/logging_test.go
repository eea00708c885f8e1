package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-inject/framework/config"
	"github.com/km-arc/go-inject/framework/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_RespectsLevel(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			log, err := logging.New(config.LogConfig{Level: "warn", Format: format})
			require.NoError(t, err)

			assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
			assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
		})
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	log, err := logging.New(config.LogConfig{Level: "chatty"})
	assert.Nil(t, log)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.False(t, logging.Nop().Core().Enabled(zapcore.ErrorLevel))
}
