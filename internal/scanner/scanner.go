// Package scanner implements the Response Scanner (§4.3): a compiled regex
// library, screened for ReDoS-prone custom patterns, that scans response
// text and produces a pass/redact/block verdict. Grounded on the teacher's
// internal/engine/scanner.go — that file's "wrap a scan engine, reduce its
// findings to a verdict with escalating severity" shape is kept; the
// third-party Aguara engine is replaced with the fixed built-in pattern
// table the specification mandates (see DESIGN.md for why Aguara could not
// be wired here).
package scanner

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"
)

// Action is the verdict a single finding (or the scan overall) carries.
type Action string

const (
	Pass   Action = "pass"
	Redact Action = "redact"
	Block  Action = "block"
)

// actionPriority orders actions for the "max by priority" rule of §4.3 step 4.
var actionPriority = map[Action]int{Pass: 0, Redact: 1, Block: 2}

func maxAction(a, b Action) Action {
	if actionPriority[b] > actionPriority[a] {
		return b
	}
	return a
}

const redactedToken = "[REDACTED]"

// Finding is one pattern's evidence, per §4.3 step 3.
type Finding struct {
	Name       string
	Category   Category
	Action     Action
	Message    string
	MatchCount int
	Preview    string
}

// ScanResult is the Response Scanner's contract output.
type ScanResult struct {
	Action        Action
	Findings      []Finding
	OriginalSize  int
	Oversize      bool
	RedactedText  string
}

// Config configures pattern selection and size limits.
type Config struct {
	DetectSecrets bool
	DetectPII     bool
	// Base64Action overrides the large-base64-blob finding's action;
	// zero value means Pass (§4.3's default).
	Base64Action Action
	// MaxResponseSize, if > 0, triggers the oversize handling of §4.3 step 2.
	MaxResponseSize int
	OversizeAction  Action
	// MaxPatterns caps how many CustomPatterns are compiled; default 100.
	MaxPatterns int
	// CustomPatterns are user-supplied regex sources, screened for ReDoS
	// shapes before compilation (see redos.go).
	CustomPatterns []CustomPattern
}

// CustomPattern is one user-supplied detection rule.
type CustomPattern struct {
	Name     string
	Category Category
	Action   Action
	Pattern  string
}

// DefaultConfig matches §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		DetectSecrets:   true,
		DetectPII:       false,
		Base64Action:    Pass,
		MaxResponseSize: 0,
		OversizeAction:  Redact,
		MaxPatterns:     100,
	}
}

// Scanner holds the compiled pattern table for one configuration snapshot.
type Scanner struct {
	mu sync.RWMutex

	cfg      Config
	patterns []pattern
	// Rejected records custom patterns that failed the ReDoS screen or
	// failed to compile; non-fatal per §4.3.
	Rejected []RejectedPattern
}

// RejectedPattern records why a custom pattern was not compiled.
type RejectedPattern struct {
	Name   string
	Reason string
}

// New compiles cfg into a ready Scanner.
func New(cfg Config) *Scanner {
	s := &Scanner{}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig recompiles the pattern table. Safe to call concurrently with
// Scan; per §9 "Cyclic reload" the scanner's pattern table is swapped
// wholesale, never mutated in place.
func (s *Scanner) UpdateConfig(cfg Config) {
	if cfg.Base64Action == "" {
		cfg.Base64Action = Pass
	}
	if cfg.OversizeAction == "" {
		cfg.OversizeAction = Redact
	}
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = 100
	}

	var compiled []pattern
	if cfg.DetectSecrets {
		for _, p := range builtinSecrets {
			if p.Name == "large-base64-blob" {
				p.Action = cfg.Base64Action
			}
			compiled = append(compiled, p)
		}
	}
	if cfg.DetectPII {
		compiled = append(compiled, builtinPII...)
	}

	var rejected []RejectedPattern
	n := 0
	for _, cp := range cfg.CustomPatterns {
		if n >= cfg.MaxPatterns {
			rejected = append(rejected, RejectedPattern{Name: cp.Name, Reason: "maxPatterns exceeded"})
			continue
		}
		re, err := compileUserPattern(cp.Pattern)
		if err != nil {
			rejected = append(rejected, RejectedPattern{Name: cp.Name, Reason: err.Error()})
			continue
		}
		action := cp.Action
		if action == "" {
			action = Redact
		}
		compiled = append(compiled, pattern{Name: cp.Name, Category: cp.Category, Action: action, re: re})
		n++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.patterns = compiled
	s.Rejected = rejected
}

// Scan runs the §4.3 scan algorithm against text.
func (s *Scanner) Scan(text string) ScanResult {
	s.mu.RLock()
	cfg := s.cfg
	patterns := s.patterns
	s.mu.RUnlock()

	originalSize := len(text) // UTF-8 byte length
	result := ScanResult{Action: Pass, OriginalSize: originalSize}

	if cfg.MaxResponseSize > 0 && originalSize > cfg.MaxResponseSize {
		result.Oversize = true
		result.Findings = append(result.Findings, Finding{
			Name:     "__oversize__",
			Category: CategoryExfiltration,
			Action:   cfg.OversizeAction,
			Message:  fmt.Sprintf("response size %d exceeds limit %d", originalSize, cfg.MaxResponseSize),
		})
		result.Action = maxAction(result.Action, cfg.OversizeAction)
	}

	for _, p := range patterns {
		locs := p.re.FindAllString(text, -1)
		if len(locs) == 0 {
			continue
		}
		result.Findings = append(result.Findings, Finding{
			Name:       p.Name,
			Category:   p.Category,
			Action:     p.Action,
			Message:    fmt.Sprintf("%s matched %d time(s)", p.Name, len(locs)),
			MatchCount: len(locs),
			Preview:    preview(locs[0]),
		})
		result.Action = maxAction(result.Action, p.Action)
	}

	if result.Action == Redact {
		result.RedactedText = redact(text, cfg, patterns, result.Oversize)
	}

	return result
}

// preview implements §4.3 step 3's finding preview rule.
func preview(match string) string {
	if utf8.RuneCountInString(match) <= 8 {
		return "***"
	}
	r := []rune(match)
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

// redact implements §4.3 step 5: truncate if oversized, then replace every
// match of every redact-action pattern with the literal token, in compiled
// order. Overlapping patterns can redact inside an already-redacted region;
// that is benign (§9 design note) and intentionally not special-cased.
func redact(text string, cfg Config, patterns []pattern, oversize bool) string {
	out := text
	if oversize && cfg.MaxResponseSize > 0 {
		if len(out) > cfg.MaxResponseSize {
			out = out[:cfg.MaxResponseSize] + "\n...[truncated]"
		}
	}
	for _, p := range patterns {
		if p.Action != Redact {
			continue
		}
		out = p.re.ReplaceAllString(out, redactedToken)
	}
	return out
}

// Idempotent reports whether scanning the redacted text of r no longer
// trips any redact/block finding — §8 testable property 10.
func (s *Scanner) Idempotent(r ScanResult) bool {
	if r.Action != Redact {
		return true
	}
	return s.Scan(r.RedactedText).Action == Pass
}

// Categories returns the sorted, de-duplicated category list of the result,
// used by callers (the audit log, the dashboard) that want a short summary
// without walking Findings themselves.
func (r ScanResult) Categories() []string {
	seen := map[Category]bool{}
	var cats []string
	for _, f := range r.Findings {
		if !seen[f.Category] {
			seen[f.Category] = true
			cats = append(cats, string(f.Category))
		}
	}
	sort.Strings(cats)
	return cats
}
