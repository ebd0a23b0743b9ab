// Package injection implements the Injection Detector (§4.4): a fixed
// library of pattern-matching heuristics, tiered by sensitivity, that flags
// tool-call arguments likely to carry a prompt-injection payload. Grounded
// on the teacher's engine/scanner.go credentialPatterns table (a flat
// compiled-once regex list scanned in order) and proxy/handler.go's
// scanConcatenated idea of escalating based on accumulated evidence — here
// realized as confidence escalation across argument values rather than
// across a sliding window of messages (that cross-message idea belongs to
// the Chain Detector instead).
package injection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/agentwall/agentwall/internal/wire"
)

const minValueLen = 5

// Sensitivity selects which tiers of the built-in library run.
type Sensitivity int

const (
	SensitivityLow Sensitivity = iota + 1
	SensitivityMedium
	SensitivityHigh
)

// Match is one pattern hit against one argument value.
type Match struct {
	Category   Category
	Pattern    string
	Matched    string
	ArgumentKey string
	Confidence Confidence
}

// Result is the Injection Detector's contract output.
type Result struct {
	Detected   bool
	Confidence Confidence
	Matches    []Match
	Summary    string
}

// CustomPattern is a user-supplied detection rule, screened the same way
// the Response Scanner screens custom patterns (reusing the ReDoS blacklist
// is out of this package's scope; compile failures are simply rejected).
type CustomPattern struct {
	Name       string
	Category   Category
	Confidence Confidence
	Pattern    string
}

// Config configures sensitivity, exclusions, and custom patterns.
type Config struct {
	Enabled      bool
	Sensitivity  Sensitivity
	ExcludeTools []string
	Custom       []CustomPattern
}

// DefaultConfig matches §4.4's implied defaults: enabled, medium sensitivity.
func DefaultConfig() Config {
	return Config{Enabled: true, Sensitivity: SensitivityMedium}
}

// Detector holds the compiled pattern set eligible for the configured
// sensitivity.
type Detector struct {
	cfg      Config
	eligible []libraryPattern
	excluded map[string]bool
	Rejected []string
}

// New compiles cfg into a ready Detector.
func New(cfg Config) *Detector {
	d := &Detector{}
	d.UpdateConfig(cfg)
	return d
}

// UpdateConfig recompiles the eligible pattern set.
func (d *Detector) UpdateConfig(cfg Config) {
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = SensitivityMedium
	}
	var eligible []libraryPattern
	for _, p := range builtinLibrary {
		if p.MinSens <= int(cfg.Sensitivity) {
			eligible = append(eligible, p)
		}
	}
	var rejected []string
	for _, cp := range cfg.Custom {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %v", cp.Name, err))
			continue
		}
		minSens := 1
		eligible = append(eligible, libraryPattern{
			Name: cp.Name, Category: cp.Category, MinSens: minSens,
			Confidence: cp.Confidence, re: re,
		})
	}

	excluded := make(map[string]bool, len(cfg.ExcludeTools))
	for _, t := range cfg.ExcludeTools {
		excluded[t] = true
	}

	d.cfg = cfg
	d.eligible = eligible
	d.excluded = excluded
	d.Rejected = rejected
}

// Scan runs the §4.4 detection algorithm against one tool call. Excluded
// tools are skipped entirely and return a clean Result.
func (d *Detector) Scan(call wire.ToolCall) Result {
	if !d.cfg.Enabled || d.excluded[call.Name] {
		return Result{}
	}

	var matches []Match
	best := Confidence(0)

	keys := make([]string, 0, len(call.Arguments))
	for k := range call.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := stringify(call.Arguments[key])
		if len(value) < minValueLen {
			continue
		}
		for _, p := range d.eligible {
			loc := p.re.FindString(value)
			if loc == "" {
				continue
			}
			matched := loc
			if len(matched) > 80 {
				matched = matched[:80]
			}
			matches = append(matches, Match{
				Category:    p.Category,
				Pattern:     p.Name,
				Matched:     matched,
				ArgumentKey: key,
				Confidence:  p.Confidence,
			})
			if p.Confidence > best {
				best = p.Confidence
			}
		}
	}

	if len(matches) == 0 {
		return Result{}
	}

	return Result{
		Detected:   true,
		Confidence: best,
		Matches:    matches,
		Summary:    summarize(matches),
	}
}

func summarize(matches []Match) string {
	cats := map[Category]int{}
	for _, m := range matches {
		cats[m.Category]++
	}
	names := make([]string, 0, len(cats))
	for c := range cats {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return fmt.Sprintf("%d match(es) across %d categor(y/ies): %v", len(matches), len(names), names)
}

// stringify canonical-stringifies a nested argument value per §4.4.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
