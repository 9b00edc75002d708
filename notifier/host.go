package notifier

import (
	"os"

	"github.com/shirou/gopsutil/host"
)

// HostName names the machine in alerts so several monitors can share one
// channel.
func HostName() string {
	info, err := host.Info()
	if err == nil && info.Hostname != "" {
		return info.Hostname
	}

	name, err := os.Hostname()
	if err != nil {
		return "unknown host"
	}
	return name
}
