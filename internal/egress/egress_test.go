package egress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentwall/agentwall/internal/wire"
)

func call(args map[string]any) wire.ToolCall {
	return wire.ToolCall{Name: "fetch_url", Arguments: args}
}

func TestCheck_AllowsOrdinaryPublicURL(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "https://api.example.com/v1/data"}))
	require.True(t, r.Allowed)
	require.Empty(t, r.Blocked)
}

func TestCheck_BlocksPrivateIP(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://10.0.0.5/internal"}))
	require.False(t, r.Allowed)
	require.Len(t, r.Blocked, 1)
}

func TestCheck_BlocksMetadataEndpoint(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://169.254.169.254/latest/meta-data/"}))
	require.False(t, r.Allowed)
}

func TestCheck_BlocksMetadataPathOnArbitraryHost(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://example.com/latest/meta-data/iam"}))
	require.False(t, r.Allowed)
}

func TestCheck_BlocksObfuscatedHexIP(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://0xA9FEA9FE/"}))
	require.False(t, r.Allowed)
}

func TestCheck_BlocksPackedDecimalIP(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://2130706433/"}))
	require.False(t, r.Allowed)
}

func TestCheck_AllowedDomainsRestrictsToListedHosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedDomains = []string{"example.com"}
	c := New(cfg)

	ok := c.Check(call(map[string]any{"url": "https://api.example.com/x"}))
	require.True(t, ok.Allowed)

	blocked := c.Check(call(map[string]any{"url": "https://evil.org/x"}))
	require.False(t, blocked.Allowed)
}

func TestCheck_BlockedDomainsRejectsSubdomain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockedDomains = []string{"evil.org"}
	c := New(cfg)
	r := c.Check(call(map[string]any{"url": "https://sub.evil.org/x"}))
	require.False(t, r.Allowed)
}

func TestCheck_LocalhostBlocked(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"url": "http://localhost:8080/admin"}))
	require.False(t, r.Allowed)
}

func TestCheck_ExcludedToolBypassesEntirely(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeTools = []string{"fetch_url"}
	c := New(cfg)
	r := c.Check(call(map[string]any{"url": "http://169.254.169.254/"}))
	require.True(t, r.Allowed)
}

func TestCheck_NoURLsFoundIsAllowed(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{"note": "no links here"}))
	require.True(t, r.Allowed)
	require.Empty(t, r.URLs)
}

func TestCheck_DeduplicatesRepeatedURL(t *testing.T) {
	c := New(DefaultConfig())
	r := c.Check(call(map[string]any{
		"a": "see https://example.com/x for details",
		"b": "also https://example.com/x again",
	}))
	require.Len(t, r.URLs, 1)
}

func TestCheck_PrivateIPBlockingDisableable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockPrivateIPs = false
	cfg.BlockMetadataEndpoints = false
	c := New(cfg)
	r := c.Check(call(map[string]any{"url": "http://10.0.0.5/"}))
	require.True(t, r.Allowed)
}
