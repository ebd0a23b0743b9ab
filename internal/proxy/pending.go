package proxy

import (
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// pendingCall is one forwarded tools/call request awaiting its server
// response, the correlation point the response pipeline uses to decide
// whether (and how) to scan a reply (§4.9 allow path, §GLOSSARY "Pending
// call").
type pendingCall struct {
	tool string
	args map[string]any
	at   time.Time
}

// pendingTable is the process-private map[requestId]pendingCall named in
// §4.9, with its own lock distinct from the engine's stats so a long-held
// pipeline stage never blocks an unrelated response lookup.
type pendingTable struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[jsonrpc.ID]pendingCall
}

func newPendingTable(ttl time.Duration) *pendingTable {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &pendingTable{ttl: ttl, m: make(map[jsonrpc.ID]pendingCall)}
}

func (t *pendingTable) put(id jsonrpc.ID, call pendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[id] = call
}

// take removes and returns the entry for id, if any — a response is
// matched to at most one pending call (§8 invariant 1).
func (t *pendingTable) take(id jsonrpc.ID) (pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.m[id]
	if ok {
		delete(t.m, id)
	}
	return call, ok
}

// len reports the current table size, used by §8 invariant 8's test.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// expire drops every entry older than ttl, per §4.9's pending-call cleanup
// ticker — bounds memory when a server never answers a forwarded call.
func (t *pendingTable) expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, call := range t.m {
		if now.Sub(call.at) > t.ttl {
			delete(t.m, id)
			removed++
		}
	}
	return removed
}
