package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwall/agentwall/internal/killswitch"
	"github.com/agentwall/agentwall/internal/policy"
)

func TestHTTPServer_StatsReturnsJSON(t *testing.T) {
	engine, bus, store := newTestEngine(t, policy.Config{DefaultAction: policy.Allow})
	b := NewBridge(Config{Engine: engine, Events: bus, Audit: store})
	srv := httptest.NewServer(NewHTTPServer(b, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
}

func TestHTTPServer_KillswitchTogglesAndReports(t *testing.T) {
	engine, bus, store := newTestEngine(t, policy.Config{DefaultAction: policy.Allow})
	ks := killswitch.New(killswitch.Config{})
	t.Cleanup(ks.Dispose)

	b := NewBridge(Config{Engine: engine, Events: bus, Audit: store, KillSwitch: ks})
	srv := httptest.NewServer(NewHTTPServer(b, nil).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"active":true,"reason":"incident"}`)
	resp, err := http.Post(srv.URL+"/api/killswitch", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status killswitch.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Active)
	assert.Equal(t, "incident", status.Reason)
}

func TestHTTPServer_KillswitchWithoutOneReturnsConflict(t *testing.T) {
	engine, bus, store := newTestEngine(t, policy.Config{DefaultAction: policy.Allow})
	b := NewBridge(Config{Engine: engine, Events: bus, Audit: store})
	srv := httptest.NewServer(NewHTTPServer(b, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/killswitch", "application/json", strings.NewReader(`{"active":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTPServer_EventsStreamsOneSnapshot(t *testing.T) {
	engine, bus, store := newTestEngine(t, policy.Config{DefaultAction: policy.Allow})
	b := NewBridge(Config{Engine: engine, Events: bus, Audit: store, StatsInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Close()

	srv := httptest.NewServer(NewHTTPServer(b, nil).Handler())
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var frame bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		frame.WriteString(line)
		if err != nil {
			t.Fatalf("reading SSE stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.Contains(t, frame.String(), "data: ")
}
