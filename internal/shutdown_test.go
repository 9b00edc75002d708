package internal

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownContextCancelledBySignal(t *testing.T) {
	ctx, stop := ShutdownContext(context.Background())
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestShutdownContextStop(t *testing.T) {
	ctx, stop := ShutdownContext(context.Background())
	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNotifySystemdOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.NotPanics(t, func() {
		NotifySystemd(SystemdReady)
	})
}
