package proxy

import (
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func idFor(n int64) jsonrpc.ID { return jsonrpc.Int64ID(n) }

func TestPendingTable_PutTakeRoundTrip(t *testing.T) {
	tbl := newPendingTable(time.Minute)
	tbl.put(idFor(1), pendingCall{tool: "read_file", at: time.Now()})

	call, ok := tbl.take(idFor(1))
	assert.True(t, ok)
	assert.Equal(t, "read_file", call.tool)
	assert.Equal(t, 0, tbl.len())
}

func TestPendingTable_TakeIsOneShot(t *testing.T) {
	tbl := newPendingTable(time.Minute)
	tbl.put(idFor(1), pendingCall{tool: "read_file", at: time.Now()})

	_, ok := tbl.take(idFor(1))
	assert.True(t, ok)

	_, ok = tbl.take(idFor(1))
	assert.False(t, ok, "a response must correlate to at most one pending call")
}

func TestPendingTable_TakeMissingReturnsFalse(t *testing.T) {
	tbl := newPendingTable(time.Minute)
	_, ok := tbl.take(idFor(42))
	assert.False(t, ok)
}

func TestPendingTable_ExpireDropsStaleEntries(t *testing.T) {
	tbl := newPendingTable(10 * time.Millisecond)
	tbl.put(idFor(1), pendingCall{tool: "old", at: time.Now().Add(-time.Hour)})
	tbl.put(idFor(2), pendingCall{tool: "fresh", at: time.Now()})

	removed := tbl.expire(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tbl.len())

	_, ok := tbl.take(idFor(2))
	assert.True(t, ok, "fresh entry must survive expiry")
}

func TestNewPendingTable_DefaultsTTL(t *testing.T) {
	tbl := newPendingTable(0)
	assert.Equal(t, 30*time.Second, tbl.ttl)
}
