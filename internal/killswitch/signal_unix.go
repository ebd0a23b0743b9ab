//go:build !windows

package killswitch

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyKillSignal wires SIGUSR2 as the toggle signal on POSIX platforms,
// per §4.6.
func notifyKillSignal(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGUSR2)
}
