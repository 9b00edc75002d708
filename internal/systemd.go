package internal

import (
	"github.com/coreos/go-systemd/daemon"
	"go.uber.org/zap"
)

// NotifySystemd reports state to systemd when running as a Type=notify unit.
// Outside systemd it is a no-op.
func NotifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		zlog.Warn("unable to notify systemd", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		zlog.Debug("notified systemd", zap.String("state", state))
	}
}

const (
	SystemdReady    = "READY=1"
	SystemdStopping = "STOPPING=1"
)
