// Package dashboard implements the Dashboard Bridge (§4.10): a
// network-free core that observes the proxy engine's typed event stream
// and the audit log, keeps a running rule-hit tally and uptime counter,
// and periodically republishes a stats Snapshot to its own subscribers. A
// thin net/http layer in httpserver.go exposes the same core over HTTP;
// that layer is the external collaborator named in §1 and carries no
// decision logic of its own. Grounded on the teacher's
// internal/dashboard/server.go, whose ticker-driven stats loop and SSE Hub
// this package keeps, with the transport split out so Bridge itself stays
// testable without a socket.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentwall/agentwall/internal/audit"
	"github.com/agentwall/agentwall/internal/killswitch"
	"github.com/agentwall/agentwall/internal/proxy"
)

// DefaultStatsInterval matches §4.10's "every 2s default".
const DefaultStatsInterval = 2 * time.Second

// ErrNoKillSwitch is returned by SetKillSwitch when the bridge was built
// without one — toggling has nothing to act on.
var ErrNoKillSwitch = errors.New("dashboard: no kill switch configured")

// Snapshot is the point-in-time view Bridge publishes on its ticker and
// serves on demand, combining the proxy engine's own counters with uptime
// and the bridge's running rule-hit tally (§4.10 contract).
type Snapshot struct {
	Stats        proxy.StatsSnapshot
	UptimeMs     int64
	RuleHits     map[string]uint64
	KillSwitch   killswitch.Status
	PendingCalls int
}

// Config bundles Bridge's collaborators. Engine and Audit are required;
// Events should be the same *proxy.Bus passed to proxy.Config so Bridge
// actually observes the engine it reports on; KillSwitch may be nil.
type Config struct {
	Engine        *proxy.Engine
	Events        *proxy.Bus
	KillSwitch    *killswitch.KillSwitch
	Audit         *audit.Store
	StatsInterval time.Duration
}

// Bridge is the Dashboard Bridge core.
type Bridge struct {
	engine     *proxy.Engine
	kill       *killswitch.KillSwitch
	auditStore *audit.Store
	interval   time.Duration
	startedAt  time.Time

	mu       sync.Mutex
	ruleHits map[string]uint64

	bus *Bus

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBridge constructs a Bridge and subscribes it to cfg.Events, if given.
func NewBridge(cfg Config) *Bridge {
	interval := cfg.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	b := &Bridge{
		engine:     cfg.Engine,
		kill:       cfg.KillSwitch,
		auditStore: cfg.Audit,
		interval:   interval,
		startedAt:  time.Now(),
		ruleHits:   make(map[string]uint64),
		bus:        &Bus{},
		stopCh:     make(chan struct{}),
	}
	if cfg.Events != nil {
		cfg.Events.Subscribe(b.onEngineEvent)
	}
	return b
}

// onEngineEvent tallies every event that names a rule — deny/prompt/scan
// verdicts do, plain allows don't, matching §4.10's "running rule-hit
// tally".
func (b *Bridge) onEngineEvent(ev proxy.Event) {
	if ev.Rule == "" {
		return
	}
	b.mu.Lock()
	b.ruleHits[ev.Rule]++
	b.mu.Unlock()
}

// Start launches the periodic stats-publish ticker. Safe to call at most
// once per Bridge; call Close to stop it.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.bus.publish(b.Stats())
			}
		}
	}()
}

// Close stops the periodic publish loop and waits for it to exit.
func (b *Bridge) Close() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// Subscribe registers l to receive every periodically published Snapshot
// (used by the SSE endpoint in httpserver.go). The returned func
// unsubscribes it.
func (b *Bridge) Subscribe(l func(Snapshot)) (unsubscribe func()) {
	return b.bus.Subscribe(l)
}

// Stats assembles a fresh Snapshot on demand (§4.10 "fetch current
// stats").
func (b *Bridge) Stats() Snapshot {
	b.mu.Lock()
	hits := make(map[string]uint64, len(b.ruleHits))
	for k, v := range b.ruleHits {
		hits[k] = v
	}
	b.mu.Unlock()

	snap := Snapshot{
		Stats:        b.engine.Stats(),
		UptimeMs:     time.Since(b.startedAt).Milliseconds(),
		RuleHits:     hits,
		PendingCalls: b.engine.PendingCount(),
	}
	if b.kill != nil {
		snap.KillSwitch = b.kill.GetStatus()
	}
	return snap
}

// RecentAuditEntries returns at most the last limit audit entries in
// logged order (§4.10 "fetch (limited) audit entries"). limit <= 0 returns
// every buffered entry.
func (b *Bridge) RecentAuditEntries(limit int) []audit.Entry {
	entries := b.auditStore.GetEntries()
	if limit <= 0 || limit >= len(entries) {
		return entries
	}
	return entries[len(entries)-limit:]
}

// SetKillSwitch activates or deactivates the kill switch (§4.10 "toggle
// kill-switch").
func (b *Bridge) SetKillSwitch(active bool, reason string) error {
	if b.kill == nil {
		return ErrNoKillSwitch
	}
	if active {
		b.kill.Activate(reason)
	} else {
		b.kill.Deactivate()
	}
	return nil
}
