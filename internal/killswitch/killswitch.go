// Package killswitch implements the Kill Switch (§4.6): a process-wide
// emergency stop activated by a programmatic flag, the presence of a
// kill-file, or a POSIX signal. Grounded on the teacher's
// internal/proxy/server.go anomalyLoop — its "daemonized ticker driving a
// periodic check, torn down via context cancellation" idiom is kept; the
// teacher's SIGHUP key-reload handler is the model for this package's own
// signal.Notify/goroutine lifecycle, retargeted at SIGUSR2 per §4.6.
// fsnotify shortens the latency between a kill-file's creation/removal and
// the next poll tick without replacing the poll itself, since the ticker is
// also the liveness check this package's dispose() needs to stop cleanly.
package killswitch

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = time.Second

// Status is the kill switch's externally observable state, per §4.6's
// getStatus() contract.
type Status struct {
	Active      bool
	Reason      string
	ActivatedAt *time.Time
}

// Config configures kill-file watch paths and polling cadence.
type Config struct {
	KillFilePaths []string
	PollInterval  time.Duration
}

// KillSwitch is the OR of a programmatic flag, a kill-file presence flag,
// and (on POSIX) a signal-toggled flag.
type KillSwitch struct {
	mu sync.Mutex

	programmatic bool
	fileActive   bool
	reason       string
	activatedAt  *time.Time

	cfg     Config
	ticker  *time.Ticker
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	sigCh   chan os.Signal
	wg      sync.WaitGroup
}

// New constructs a KillSwitch and starts its polling ticker and (on POSIX)
// signal handler. Call Dispose to tear both down.
func New(cfg Config) *KillSwitch {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	k := &KillSwitch{cfg: cfg, stopCh: make(chan struct{})}

	if w, err := fsnotify.NewWatcher(); err == nil {
		k.watcher = w
		for _, p := range cfg.KillFilePaths {
			_ = w.Add(parentDir(p))
		}
	}

	k.ticker = time.NewTicker(cfg.PollInterval)
	k.wg.Add(1)
	go k.pollLoop()

	if runtime.GOOS != "windows" {
		k.sigCh = make(chan os.Signal, 1)
		notifyKillSignal(k.sigCh)
		k.wg.Add(1)
		go k.signalLoop()
	}

	return k
}

// pollLoop scans kill-file paths at the configured interval; it also drains
// fsnotify events to wake an immediate re-check rather than waiting a full
// tick. The ticker is what dispose() actually needs to stop (it is the
// loop's only blocking select case besides stopCh), so it always runs even
// when the watcher failed to start.
func (k *KillSwitch) pollLoop() {
	defer k.wg.Done()
	var events <-chan fsnotify.Event
	if k.watcher != nil {
		events = k.watcher.Events
	}
	for {
		select {
		case <-k.stopCh:
			return
		case <-k.ticker.C:
			k.scanKillFiles()
		case <-events:
			k.scanKillFiles()
		}
	}
}

func (k *KillSwitch) scanKillFiles() {
	active := false
	for _, p := range k.cfg.KillFilePaths {
		if _, err := os.Stat(p); err == nil {
			active = true
			break
		}
	}
	k.mu.Lock()
	k.fileActive = active
	if active && k.reason == "" {
		k.reason = "kill-file present"
	}
	k.mu.Unlock()
}

func (k *KillSwitch) signalLoop() {
	defer k.wg.Done()
	for {
		select {
		case <-k.stopCh:
			return
		case <-k.sigCh:
			k.mu.Lock()
			k.programmatic = !k.programmatic
			if k.programmatic {
				now := time.Now()
				k.reason = "toggled by signal"
				k.activatedAt = &now
			}
			k.mu.Unlock()
		}
	}
}

// IsActive reports the OR of all activation sources.
func (k *KillSwitch) IsActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.programmatic || k.fileActive
}

// GetStatus returns the current status snapshot.
func (k *KillSwitch) GetStatus() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Status{
		Active:      k.programmatic || k.fileActive,
		Reason:      k.reason,
		ActivatedAt: k.activatedAt,
	}
}

// Activate sets the programmatic flag.
func (k *KillSwitch) Activate(reason string) {
	if reason == "" {
		reason = "activated programmatically"
	}
	now := time.Now()
	k.mu.Lock()
	k.programmatic = true
	k.reason = reason
	k.activatedAt = &now
	k.mu.Unlock()
}

// Deactivate clears the programmatic flag. A kill-file left in place keeps
// the switch active via fileActive.
func (k *KillSwitch) Deactivate() {
	k.mu.Lock()
	k.programmatic = false
	k.mu.Unlock()
}

// Dispose stops the ticker and detaches the signal handler; the returned
// KillSwitch must not be used afterward.
func (k *KillSwitch) Dispose() {
	close(k.stopCh)
	k.ticker.Stop()
	if k.watcher != nil {
		_ = k.watcher.Close()
	}
	if k.sigCh != nil {
		signal.Stop(k.sigCh)
	}
	k.wg.Wait()
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
