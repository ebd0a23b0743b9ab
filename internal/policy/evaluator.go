// Package policy implements the first-match-wins rule evaluator: given a
// tool call and the current configuration snapshot, produce a verdict.
// Grounded on the teacher's internal/policy/evaluator.go — that file's
// "construct an Evaluator from *config.Config, expose a stateless Check*
// method returning a Decision" shape is kept, generalized from a flat
// per-agent ACL allowlist into the ordered glob/alias rule engine the
// specification requires.
package policy

import (
	"fmt"
	"sync"

	"github.com/agentwall/agentwall/internal/wire"
)

// Evaluator holds the current configuration snapshot plus the rate-limiter
// state attached to it. Per §5, all of its mutable state (buckets) is only
// ever touched from the proxy engine's single serialization point; the
// mutex here exists solely to make UpdateConfig safe to call from a signal
// handler or admin endpoint running on a different goroutine than the main
// request loop (§9 "Cyclic reload").
type Evaluator struct {
	mu sync.Mutex

	cfg           Config
	globalLimiter *rateLimiter
	ruleLimiters  map[string]*rateLimiter
}

// NewEvaluator constructs an Evaluator from the given configuration.
func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{}
	e.applyConfigLocked(cfg)
	return e
}

// UpdateConfig atomically replaces the snapshot and resets all rate-limiter
// buckets — "a tightened rule should not be bypassed by an old bucket".
func (e *Evaluator) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyConfigLocked(cfg)
}

func (e *Evaluator) applyConfigLocked(cfg Config) {
	e.cfg = cfg
	if cfg.GlobalRateLimit != nil {
		e.globalLimiter = newRateLimiter(cfg.GlobalRateLimit.MaxCalls, cfg.GlobalRateLimit.WindowSeconds)
	} else {
		e.globalLimiter = nil
	}
	e.ruleLimiters = make(map[string]*rateLimiter, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.RateLimit != nil {
			e.ruleLimiters[r.Name] = newRateLimiter(r.RateLimit.MaxCalls, r.RateLimit.WindowSeconds)
		}
	}
}

// Evaluate runs the ordered evaluation described in §4.2. It never panics
// or returns an error on ordinary input — every outcome, including internal
// inconsistency, is expressed as a Verdict (deny, by the fail-closed policy
// of §7).
func (e *Evaluator) Evaluate(call wire.ToolCall) Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.globalLimiter != nil && !e.globalLimiter.allow(globalBucketKey) {
		return Verdict{Action: Deny, Rule: "__global_rate_limit__", Message: "global rate limit exceeded"}
	}

	toolName := NormalizeToolName(call.Name)

	for _, rule := range e.cfg.Rules {
		if !matchToolPattern(rule.ToolPattern, toolName) {
			continue
		}
		if !argumentsMatch(rule.Match, call.Arguments) {
			continue
		}

		if limiter, ok := e.ruleLimiters[rule.Name]; ok {
			if !limiter.allow(rule.Name) {
				return Verdict{Action: Deny, Rule: rule.Name, Message: fmt.Sprintf("rate limit exceeded for rule %q", rule.Name)}
			}
		}

		msg := rule.Message
		if msg == "" {
			msg = synthesizeMessage(rule.Action, rule.Name)
		}
		return Verdict{Action: rule.Action, Rule: rule.Name, Message: msg}
	}

	if e.cfg.Mode == ModeStrict {
		return Verdict{Action: Deny, Message: "Zero-trust: no matching allow rule"}
	}
	def := e.cfg.DefaultAction
	if def == "" {
		def = Prompt
	}
	return Verdict{Action: def, Message: fmt.Sprintf("no matching rule; default action %q applied", def)}
}

// argumentsMatch reports whether every (key, pattern) pair in match is
// satisfied (AND semantics).
func argumentsMatch(match ArgumentMatch, args map[string]any) bool {
	for key, pattern := range match {
		val, ok := resolveArgument(args, key)
		if !ok {
			return false
		}
		normalized := NormalizeArgumentValue(val)
		if !matchAlternatives(pattern, normalized) {
			return false
		}
	}
	return true
}

func synthesizeMessage(action Action, ruleName string) string {
	if ruleName == "" {
		return fmt.Sprintf("%s by policy", action)
	}
	return fmt.Sprintf("%s by rule %q", action, ruleName)
}
