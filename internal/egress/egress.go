// Package egress implements Egress Control (§4.5): extract URLs from a tool
// call's arguments and decide, per URL, whether the outbound request is
// allowed. Grounded on the teacher's internal/proxy/ssrf.go — its
// blockedCIDRs table and looksLikeAlternativeIP obfuscated-host detector are
// kept verbatim in spirit, adapted from a dial-time guard (ValidateHost /
// safeDialContext wrapping net.Dialer) into a pre-dispatch checker that
// never itself opens a socket — the proxy engine forwards the call to the
// child process regardless; this package only decides allow/block.
package egress

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/agentwall/agentwall/internal/wire"
)

// urlPattern extracts bare http(s) URLs from free-form text per §4.5.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\])}]+`)

var metadataHosts = map[string]bool{
	"169.254.169.254":        true,
	"metadata.google.internal": true,
	"metadata.goog":          true,
	"100.100.100.200":        true,
	"169.254.170.2":          true,
}

var obfuscatedIPPattern = regexp.MustCompile(`^(0x[0-9a-fA-F]+|\d{8,})$`)

// Config configures allow/block domain lists and the built-in protections.
type Config struct {
	AllowedDomains         []string
	BlockedDomains         []string
	BlockMetadataEndpoints bool
	BlockPrivateIPs        bool
	ExcludeTools           []string
}

// DefaultConfig matches §4.5's implied secure-by-default posture.
func DefaultConfig() Config {
	return Config{BlockMetadataEndpoints: true, BlockPrivateIPs: true}
}

// BlockedURL records one rejected URL and why.
type BlockedURL struct {
	URL    string
	Reason string
}

// Result is the Egress Control contract output.
type Result struct {
	Allowed bool
	URLs    []string
	Blocked []BlockedURL
	Summary string
}

// Checker holds one configuration snapshot.
type Checker struct {
	cfg      Config
	excluded map[string]bool
}

func New(cfg Config) *Checker {
	c := &Checker{}
	c.UpdateConfig(cfg)
	return c
}

func (c *Checker) UpdateConfig(cfg Config) {
	excluded := make(map[string]bool, len(cfg.ExcludeTools))
	for _, t := range cfg.ExcludeTools {
		excluded[t] = true
	}
	c.cfg = cfg
	c.excluded = excluded
}

// Check extracts and evaluates every URL referenced by a tool call's
// arguments.
func (c *Checker) Check(call wire.ToolCall) Result {
	if c.excluded[call.Name] {
		return Result{Allowed: true}
	}

	seen := map[string]bool{}
	var urls []string
	for _, v := range call.Arguments {
		for _, u := range urlPattern.FindAllString(stringify(v), -1) {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}

	result := Result{Allowed: true, URLs: urls}
	for _, raw := range urls {
		if reason, blocked := c.evaluate(raw); blocked {
			result.Allowed = false
			result.Blocked = append(result.Blocked, BlockedURL{URL: raw, Reason: reason})
		}
	}
	if len(result.Blocked) > 0 {
		result.Summary = fmt.Sprintf("%d of %d URL(s) blocked", len(result.Blocked), len(urls))
	}
	return result
}

// evaluate implements the ordered §4.5 per-URL decision.
func (c *Checker) evaluate(raw string) (reason string, blocked bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "unparseable URL", true
	}
	host := parsed.Hostname()
	if host == "" {
		return "missing host", true
	}
	lowerHost := strings.ToLower(host)

	// 1. allowedDomains allowlist.
	if len(c.cfg.AllowedDomains) > 0 {
		if !matchesAnyDomain(lowerHost, c.cfg.AllowedDomains) {
			return "host not in allowedDomains", true
		}
	}

	// 2. blockedDomains denylist.
	if matchesAnyDomain(lowerHost, c.cfg.BlockedDomains) {
		return "host matches blockedDomains", true
	}

	// 3. obfuscated IP encodings.
	if obfuscatedIPPattern.MatchString(lowerHost) {
		return "host uses an obfuscated IP encoding", true
	}

	// 4. cloud metadata endpoints.
	if c.cfg.BlockMetadataEndpoints {
		if metadataHosts[lowerHost] {
			return "host is a cloud metadata endpoint", true
		}
		if strings.Contains(parsed.Path, "/latest/meta-data") || strings.Contains(parsed.Path, "/metadata/instance") {
			return "path targets a cloud metadata endpoint", true
		}
	}

	// 5. private/loopback/link-local IPs.
	if c.cfg.BlockPrivateIPs {
		if lowerHost == "localhost" || lowerHost == "ip6-localhost" {
			return "host is localhost", true
		}
		if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
			return "host resolves to a private/reserved IP range", true
		}
	}

	return "", false
}

// matchesAnyDomain reports whether host equals, or is a subdomain of, any
// entry in domains.
func matchesAnyDomain(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
