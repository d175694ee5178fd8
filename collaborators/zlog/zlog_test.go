package zlog

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siteforge/pipeline/collaborators"
)

func TestLoggerFailureCountThresholds(t *testing.T) {
	l := New(io.Discard)
	l.Debug("d", nil)
	l.Info("i", nil)
	l.Warn("w", nil)
	l.Error("e", nil)

	assert.Equal(t, 4, l.FailureCount(collaborators.LevelDebug))
	assert.Equal(t, 2, l.FailureCount(collaborators.LevelWarn))
	assert.Equal(t, 1, l.FailureCount(collaborators.LevelError))
	assert.Equal(t, 0, l.FailureCount(collaborators.LevelNone))
}

func TestLoggerResetFailureCount(t *testing.T) {
	l := New(io.Discard)
	l.Error("e", nil)
	assert.Equal(t, 1, l.FailureCount(collaborators.LevelError))

	l.ResetFailureCount()
	assert.Equal(t, 0, l.FailureCount(collaborators.LevelError))
}

func TestLoggerNilWriterDefaultsToStdout(t *testing.T) {
	l := New(nil)
	assert.NotNil(t, l)
}
