//go:build windows

package killswitch

import "os"

// notifyKillSignal is a no-op on Windows: §4.6 disables the signal-toggle
// activation source on this platform.
func notifyKillSignal(ch chan os.Signal) {}
