// Package chain implements the Chain Detector (§4.7): a bounded, ordered
// history of recently allowed tool calls matched against built-in
// tool-name-sequence signatures. Grounded on the teacher's
// internal/proxy/window.go MessageWindow — its age-then-size pruning and
// per-key bucket idiom is kept verbatim; the content it buffers changes from
// raw message text (for cross-message injection concatenation) to tool call
// records, and its match step changes from "rescan concatenated text" to
// "glob-match the last N entries against a named sequence".
package chain

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/agentwall/agentwall/internal/wire"
)

const (
	defaultWindowSize = 20
	defaultWindowMs   = 60000
)

// entry is one recorded tool call.
type entry struct {
	toolName string
	args     map[string]any
	at       time.Time
}

// Match describes one built-in pattern firing.
type Match struct {
	Name     string
	Severity Severity
}

// Result is the Chain Detector's record() contract output.
type Result struct {
	Detected bool
	Matches  []Match
	Summary  string
}

// Config bounds the detector's history window and extends the built-in
// pattern table.
type Config struct {
	WindowSize   int
	WindowMs     int
	CustomChains []ChainPattern
}

func DefaultConfig() Config {
	return Config{WindowSize: defaultWindowSize, WindowMs: defaultWindowMs}
}

// Detector holds the ordered, pruned call history. Must only be fed calls
// the policy engine has already allowed, per §4.7's contract.
type Detector struct {
	mu        sync.Mutex
	cfg       Config
	history   []entry
	globCache map[string]*regexp.Regexp
}

func New(cfg Config) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = defaultWindowMs
	}
	return &Detector{cfg: cfg, globCache: make(map[string]*regexp.Regexp)}
}

// Record appends call to the history, pruning by age then size, and checks
// every built-in pattern against the resulting tail.
func (d *Detector) Record(call wire.ToolCall) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Duration(d.cfg.WindowMs) * time.Millisecond)

	fresh := d.history[:0]
	for _, e := range d.history {
		if e.at.After(cutoff) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) >= d.cfg.WindowSize {
		fresh = fresh[len(fresh)-d.cfg.WindowSize+1:]
	}
	d.history = append(fresh, entry{toolName: call.Name, args: call.Arguments, at: now})

	var matches []Match
	for _, p := range builtinPatterns {
		if d.matchesTail(d.history, p) {
			matches = append(matches, Match{Name: p.Name, Severity: p.Severity})
		}
	}
	for _, cp := range d.cfg.CustomChains {
		p := patternDef{Name: cp.Name, Severity: cp.Severity, TrackArguments: cp.TrackArguments, Sequence: cp.Sequence}
		if d.matchesTail(d.history, p) {
			matches = append(matches, Match{Name: p.Name, Severity: p.Severity})
		}
	}

	if len(matches) == 0 {
		return Result{}
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return Result{Detected: true, Matches: matches, Summary: strings.Join(names, ", ")}
}

// Reset clears the history; used on config swap per §9's cyclic-reload note.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.history = nil
	d.mu.Unlock()
}

// matchesTail reports whether the last len(p.Sequence) history entries match
// p's sequence slot-by-slot, per §4.7's "last N entries" rule. For
// track-arguments patterns, it additionally requires that some string
// argument value from the first slot reappears (as a substring) in the last
// slot's arguments — evidence that data actually flowed between the calls,
// not just that the tool names happened to line up. Called only from
// Record, which already holds d.mu, so it needs no locking of its own.
func (d *Detector) matchesTail(history []entry, p patternDef) bool {
	seq := p.Sequence
	if len(history) < len(seq) {
		return false
	}
	tail := history[len(history)-len(seq):]
	for i, slot := range seq {
		if !d.matchToolPattern(slot, tail[i].toolName) {
			return false
		}
	}
	if p.TrackArguments && !argumentsFlow(tail[0].args, tail[len(tail)-1].args) {
		return false
	}
	return true
}

// argumentsFlow reports whether any string value in from reappears as a
// substring of any string value in to.
func argumentsFlow(from, to map[string]any) bool {
	var values []string
	for _, v := range to {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	for _, v := range from {
		s, ok := v.(string)
		if !ok || len(s) < 3 {
			continue
		}
		for _, tv := range values {
			if strings.Contains(tv, s) {
				return true
			}
		}
	}
	return false
}

// matchToolPattern matches a '|'-joined, '*'-wildcard tool-name pattern
// against a tool name, case-insensitively. The compiled regex cache lives on
// the Detector instance, not a package-level global, so two Detectors never
// share compiled state. Called only from Record, which already holds d.mu.
func (d *Detector) matchToolPattern(pattern, name string) bool {
	for _, alt := range strings.Split(pattern, "|") {
		if d.compileToolGlob(alt).MatchString(name) {
			return true
		}
	}
	return false
}

func (d *Detector) compileToolGlob(alt string) *regexp.Regexp {
	if re, ok := d.globCache[alt]; ok {
		return re
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range alt {
		if r == '*' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	d.globCache[alt] = re
	return re
}
