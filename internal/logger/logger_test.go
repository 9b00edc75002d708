package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDevelopment(t *testing.T) {
	t.Setenv(DebugEnv, "")
	l := New("test")
	assert.NotNil(t, l.Logger)
}

func TestOtelZapLoggerIsUsable(t *testing.T) {
	l := OtelZapLogger("test")
	assert.NotPanics(t, func() {
		l.Sugar().Infof("hello %s", "world")
	})
}
