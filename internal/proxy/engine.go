// Package proxy implements the Proxy Engine (§4.9): the component that
// spawns a tool-server child process, intercepts its stdio JSON-RPC
// traffic in both directions, and drives every client request through the
// kill-switch / injection / egress / policy / chain pipeline before
// deciding to forward, deny, or prompt — then scans every response the
// child sends back before it reaches the client. Grounded on the
// teacher's internal/proxy/stdio.go (child process + duplex interception)
// merged with internal/proxy/server.go's lifecycle/shutdown sequencing and
// internal/proxy/handler.go's staged-pipeline idiom — that handler
// evaluated identity/ACL/scan stages in a fixed order and logged one audit
// entry per request; Engine keeps that shape but re-targets every stage at
// the spec's six security modules instead of the teacher's agent-to-agent
// messaging checks.
package proxy

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/agentwall/agentwall/internal/audit"
	"github.com/agentwall/agentwall/internal/chain"
	"github.com/agentwall/agentwall/internal/config"
	"github.com/agentwall/agentwall/internal/egress"
	"github.com/agentwall/agentwall/internal/injection"
	"github.com/agentwall/agentwall/internal/killswitch"
	"github.com/agentwall/agentwall/internal/policy"
	"github.com/agentwall/agentwall/internal/scanner"
	"github.com/agentwall/agentwall/internal/wire"
)

// ApprovalFunc is the external human-approval callback invoked for a
// `prompt` verdict. A nil ApprovalFunc means no prompt handler is wired;
// per §4.9 that is treated as an auto-deny.
type ApprovalFunc func(call wire.ToolCall) bool

// DeliverFunc hands a prompt verdict's eventual outcome back to the caller
// once the (possibly slow) ApprovalFunc returns, since HandleClient itself
// has already returned by then. forward=true means write raw through to
// the server unchanged; forward=false with a non-nil response means write
// response to the client instead.
type DeliverFunc func(forward bool, raw, response []byte)

// Stats are the running counters the Dashboard Bridge polls (§4.10).
// Fields are updated with atomic operations so Snapshot never races with
// the pipeline goroutines.
type Stats struct {
	Total            atomic.Uint64
	Forwarded        atomic.Uint64
	Denied           atomic.Uint64
	Prompted         atomic.Uint64
	Scanned          atomic.Uint64
	ResponseBlocked  atomic.Uint64
	ResponseRedacted atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats safe to pass around.
type StatsSnapshot struct {
	Total            uint64
	Forwarded        uint64
	Denied           uint64
	Prompted         uint64
	Scanned          uint64
	ResponseBlocked  uint64
	ResponseRedacted uint64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Total:            s.Total.Load(),
		Forwarded:        s.Forwarded.Load(),
		Denied:           s.Denied.Load(),
		Prompted:         s.Prompted.Load(),
		Scanned:          s.Scanned.Load(),
		ResponseBlocked:  s.ResponseBlocked.Load(),
		ResponseRedacted: s.ResponseRedacted.Load(),
	}
}

// Config bundles Engine's optional collaborators. Every *Checker/*Detector
// field may be nil to disable that module entirely (§4.9 steps name this
// explicitly: "Injection enabled and detected...", "Egress enabled...").
type Config struct {
	Policy     *policy.Evaluator // required
	Scanner    *scanner.Scanner  // nil disables response scanning
	Injection  *injection.Detector
	Egress     *egress.Checker
	KillSwitch *killswitch.KillSwitch
	Chain      *chain.Detector
	Audit      *audit.Store // required
	Events     *Bus
	Approve    ApprovalFunc
	Deliver    DeliverFunc
	PendingTTL time.Duration
	Logger     *slog.Logger
}

// Engine is the pipeline named by §4.9. Each sub-collaborator (policy,
// scanner, injection, egress, killswitch, chain) already serializes its
// own internal state; Engine itself only owns the pending-call table and
// the stats counters, so a long-running approval callback never blocks
// unrelated traffic (§5 "Suspension points").
type Engine struct {
	policy     *policy.Evaluator
	scan       *scanner.Scanner
	inject     *injection.Detector
	egressChk  *egress.Checker
	kill       *killswitch.KillSwitch
	chainDet   *chain.Detector
	auditStore *audit.Store
	events     *Bus
	approve    ApprovalFunc
	deliver    DeliverFunc
	logger     *slog.Logger

	pending   *pendingTable
	stats     Stats
	sessionID string
}

// NewEngine constructs an Engine from cfg. Policy and Audit must be
// non-nil; every other collaborator is optional. Each Engine is stamped
// with a fresh session id (one proxied child process's lifetime, per
// §3 AuditEntry.sessionId) so a shared audit log can be split back out
// per run.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		policy:     cfg.Policy,
		scan:       cfg.Scanner,
		inject:     cfg.Injection,
		egressChk:  cfg.Egress,
		kill:       cfg.KillSwitch,
		chainDet:   cfg.Chain,
		auditStore: cfg.Audit,
		events:     cfg.Events,
		approve:    cfg.Approve,
		deliver:    cfg.Deliver,
		logger:     cfg.Logger,
		pending:    newPendingTable(cfg.PendingTTL),
		sessionID:  uuid.NewString(),
	}
}

// SetDeliver wires the callback used to deliver a prompt verdict's outcome
// once the approval callback returns. Runner calls this once, after
// constructing both itself and the Engine, before any traffic is pumped.
func (e *Engine) SetDeliver(fn DeliverFunc) {
	e.deliver = fn
}

// Stats returns the engine's live counters.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot() }

// ExpirePending drops pending-call entries older than the configured TTL;
// callers run this from a periodic ticker (§4.9 "Pending-call cleanup").
func (e *Engine) ExpirePending(now time.Time) int { return e.pending.expire(now) }

// PendingCount reports the current pending-call table size (§8 invariant 8).
func (e *Engine) PendingCount() int { return e.pending.len() }

// ResetChainHistory clears the chain detector's recorded history. Callers
// that hot-swap configuration invoke this alongside each module's own
// UpdateConfig, per §9's "Cyclic reload" note.
func (e *Engine) ResetChainHistory() {
	if e.chainDet != nil {
		e.chainDet.Reset()
	}
}

// UpdateConfig re-derives every wired collaborator's configuration from cfg
// and resets the chain detector's history, per §9's "Cyclic reload" note
// ("a tightened rule should not be bypassed by ... stale state"). A
// collaborator that was never wired at startup (its field is nil) stays
// disabled — reload changes what an enabled module does, not whether it
// exists. The caller (the CLI's SIGHUP handler) is responsible for loading
// cfg from disk; UpdateConfig only applies it.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.policy.UpdateConfig(cfg.PolicyConfig())
	if e.scan != nil {
		e.scan.UpdateConfig(cfg.ScannerConfig())
	}
	if e.inject != nil {
		e.inject.UpdateConfig(cfg.InjectionConfig())
	}
	if e.egressChk != nil {
		e.egressChk.UpdateConfig(cfg.EgressConfig())
	}
	e.ResetChainHistory()
}

// HandleClient runs the §4.9 request pipeline for one decoded
// client→server line. forward=true means the caller must write the
// original raw bytes through to the child unchanged. forward=false with a
// non-nil response means the caller must write response (already a
// complete encoded JSON-RPC line, without trailing newline) to the client
// instead. forward=false with a nil response means the line is dropped
// silently (malformed non-request traffic).
func (e *Engine) HandleClient(raw []byte) (forward bool, response []byte) {
	msg, err := wire.Decode(raw, wire.ClientToServer)
	if err != nil {
		e.events.publish(Event{Kind: EventEngineError, Message: err.Error(), Err: err})
		return false, nil
	}
	if !msg.IsToolCall() {
		return true, nil
	}

	req := msg.Request()
	call, err := wire.ExtractToolCall(req)
	if err != nil {
		return false, e.deny(req, "__invalid_message__", "malformed tools/call parameters")
	}

	e.stats.Total.Add(1)

	if e.kill != nil && e.kill.IsActive() {
		reason := e.kill.GetStatus().Reason
		e.events.publish(Event{Kind: EventKillSwitchActive, Tool: call.Name, Message: reason})
		return false, e.deny(req, "__kill_switch__", "kill switch active: "+reason)
	}

	if e.inject != nil {
		if result := e.inject.Scan(*call); result.Detected && result.Confidence >= injection.Medium {
			e.events.publish(Event{Kind: EventInjectionDetected, Tool: call.Name, Message: result.Summary})
			return false, e.deny(req, "__injection_detector__", result.Summary)
		}
	}

	if e.egressChk != nil {
		if result := e.egressChk.Check(*call); !result.Allowed {
			e.events.publish(Event{Kind: EventEgressBlocked, Tool: call.Name, Message: result.Summary})
			return false, e.deny(req, "__egress_control__", result.Summary)
		}
	}

	verdict := e.policy.Evaluate(*call)

	if verdict.Action != policy.Deny && e.chainDet != nil {
		if chainResult := e.chainDet.Record(*call); chainResult.Detected {
			if hasCriticalMatch(chainResult.Matches) {
				e.events.publish(Event{Kind: EventChainDetected, Tool: call.Name, Message: chainResult.Summary})
				return false, e.deny(req, "__chain_detector__", chainResult.Summary)
			}
			e.logRequest(req, call, "allow", "__chain_detector__", chainResult.Summary)
		}
	}

	switch verdict.Action {
	case policy.Allow:
		return true, e.allow(req, call)
	case policy.Prompt:
		return e.promptThenDecide(req, call, verdict, raw)
	default:
		return false, e.denyVerdict(req, verdict)
	}
}

// hasCriticalMatch reports whether any chain match carries critical
// severity, per §4.9 step 7's "critical severity -> deny" branch.
func hasCriticalMatch(matches []chain.Match) bool {
	for _, m := range matches {
		if m.Severity == chain.SeverityCritical {
			return true
		}
	}
	return false
}

// allow executes the §4.9 "Allow path": bumps the forwarded counter,
// tracks the call in the pending table (only when a scanner is configured
// — otherwise there is nothing to correlate a response against), logs an
// allow audit entry, and emits EventAllowed. The returned []byte is always
// nil; forward=true tells the caller to pass raw through unchanged.
func (e *Engine) allow(req *jsonrpc.Request, call *wire.ToolCall) []byte {
	e.stats.Forwarded.Add(1)
	if e.scan != nil {
		if id, ok := requestID(req); ok {
			e.pending.put(id, pendingCall{tool: call.Name, args: call.Arguments, at: time.Now()})
		}
	}
	e.logRequest(req, call, "allow", "", "")
	e.events.publish(Event{Kind: EventAllowed, Tool: call.Name})
	return nil
}

// promptThenDecide implements the `prompt` branch of §4.9 step 8. When an
// approval handler is wired, the callback itself runs on its own goroutine
// (resolveApproval) rather than blocking this call, so the client's read
// loop — which is what called HandleClient in the first place — can keep
// handling unrelated requests while this one is pending approval (§5
// "Suspension points" (b)). HandleClient has therefore already returned to
// its caller by the time the verdict is known; the eventual outcome is
// handed to e.deliver instead of returned from here.
func (e *Engine) promptThenDecide(req *jsonrpc.Request, call *wire.ToolCall, verdict policy.Verdict, raw []byte) (forward bool, response []byte) {
	e.stats.Prompted.Add(1)
	e.events.publish(Event{Kind: EventPrompted, Tool: call.Name, Message: verdict.Message})

	if e.approve == nil {
		return false, e.denyVerdict(req, policy.Verdict{
			Action:  policy.Deny,
			Rule:    verdict.Rule,
			Message: verdict.Message + " (auto-denied: no prompt handler)",
		})
	}

	go e.resolveApproval(req, call, verdict, raw)
	return false, nil
}

// resolveApproval runs the approval callback and delivers its outcome
// asynchronously. raw (the original client line, kept only for the approve
// case) is what ties this goroutine back to the one request it resolves.
func (e *Engine) resolveApproval(req *jsonrpc.Request, call *wire.ToolCall, verdict policy.Verdict, raw []byte) {
	if e.invokeApproval(*call) {
		e.allow(req, call)
		if e.deliver != nil {
			e.deliver(true, raw, nil)
		}
		return
	}
	response := e.denyVerdict(req, policy.Verdict{Action: policy.Deny, Rule: verdict.Rule, Message: verdict.Message})
	if e.deliver != nil {
		e.deliver(false, raw, response)
	}
}

// invokeApproval calls the external approval callback, recovering any
// panic as a deny per §7's ApprovalFailure kind.
func (e *Engine) invokeApproval(call wire.ToolCall) (approved bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("approval callback panicked", "panic", r)
			approved = false
		}
	}()
	return e.approve(call)
}

// deny synthesizes a deny Verdict from a bare rule/message pair.
func (e *Engine) deny(req *jsonrpc.Request, rule, message string) []byte {
	return e.denyVerdict(req, policy.Verdict{Action: policy.Deny, Rule: rule, Message: message})
}

// denyVerdict executes the §4.9 step 8 deny branch: logs, emits
// EventDenied, and synthesizes a JSON-RPC error response with code
// CodePolicyDenial.
func (e *Engine) denyVerdict(req *jsonrpc.Request, verdict policy.Verdict) []byte {
	e.stats.Denied.Add(1)

	var toolName string
	var args map[string]any
	if call, err := wire.ExtractToolCall(req); err == nil {
		toolName, args = call.Name, call.Arguments
	}

	e.auditStore.Log(audit.Entry{
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Direction: audit.DirectionRequest,
		Method:    req.Method,
		Tool:      toolName,
		Arguments: args,
		Verdict:   &audit.Verdict{Action: "deny", Rule: verdict.Rule, Message: verdict.Message},
	})
	e.events.publish(Event{Kind: EventDenied, Tool: toolName, Rule: verdict.Rule, Message: verdict.Message})

	id, _ := requestID(req)
	resp := wire.NewErrorResponse(id, wire.CodePolicyDenial, verdict.Message)
	data, err := wire.Encode(resp)
	if err != nil {
		e.logger.Error("encoding deny response failed", "error", err)
		return nil
	}
	return data
}

func (e *Engine) logRequest(req *jsonrpc.Request, call *wire.ToolCall, action, rule, message string) {
	e.auditStore.Log(audit.Entry{
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Direction: audit.DirectionRequest,
		Method:    req.Method,
		Tool:      call.Name,
		Arguments: call.Arguments,
		Verdict:   &audit.Verdict{Action: action, Rule: rule, Message: message},
	})
}

func requestID(req *jsonrpc.Request) (jsonrpc.ID, bool) {
	if req == nil || req.ID == (jsonrpc.ID{}) {
		return jsonrpc.ID{}, false
	}
	return req.ID, true
}

// HandleServer runs the §4.9 response pipeline for one decoded
// server→client line. forward=true means write raw through unchanged.
// forward=false with a non-nil response means write the rebuilt/synthesized
// response instead.
func (e *Engine) HandleServer(raw []byte) (forward bool, response []byte) {
	msg, err := wire.Decode(raw, wire.ServerToClient)
	if err != nil {
		e.events.publish(Event{Kind: EventEngineError, Message: err.Error(), Err: err})
		return false, nil
	}
	if !msg.IsResponse() {
		return true, nil
	}

	resp := msg.Response()
	call, ok := e.pending.take(resp.ID)
	if !ok || e.scan == nil {
		return true, nil
	}

	e.stats.Scanned.Add(1)
	text := responseText(resp)
	result := e.scan.Scan(text)

	switch result.Action {
	case scanner.Pass:
		return true, nil
	case scanner.Block:
		e.stats.ResponseBlocked.Add(1)
		e.auditStore.Log(audit.Entry{
			Timestamp: time.Now(),
			SessionID: e.sessionID,
			Direction: audit.DirectionResponse,
			Tool:      call.tool,
			Arguments: call.args,
			Verdict:   &audit.Verdict{Action: "deny", Rule: "__response_scanner__", Message: scanSummary(result)},
		})
		e.events.publish(Event{Kind: EventResponseBlocked, Tool: call.tool, Message: scanSummary(result)})
		blocked := wire.NewErrorResponse(resp.ID, wire.CodePolicyDenial, scanSummary(result))
		data, err := wire.Encode(blocked)
		if err != nil {
			e.logger.Error("encoding blocked response failed", "error", err)
			return false, nil
		}
		return false, data
	case scanner.Redact:
		e.stats.ResponseRedacted.Add(1)
		e.auditStore.Log(audit.Entry{
			Timestamp:       time.Now(),
			SessionID:       e.sessionID,
			Direction:       audit.DirectionResponse,
			Tool:            call.tool,
			Arguments:       call.args,
			Verdict:         &audit.Verdict{Action: "allow", Rule: "__response_scanner__", Message: scanSummary(result)},
			ResponsePreview: result.RedactedText,
		})
		e.events.publish(Event{Kind: EventResponseRedacted, Tool: call.tool, Message: scanSummary(result)})
		rebuilt := &jsonrpc.Response{ID: resp.ID, Result: wire.RebuildRedactedResult(result.RedactedText)}
		data, err := wire.Encode(rebuilt)
		if err != nil {
			e.logger.Error("encoding redacted response failed", "error", err)
			return false, nil
		}
		return false, data
	default:
		return true, nil
	}
}

// responseText implements §4.9 response pipeline step 3's text-selection
// rule: an error response concatenates its message and (stringified) data;
// otherwise the MCP-result extraction rule applies to the result.
func responseText(resp *jsonrpc.Response) string {
	if resp.Error != nil {
		text := resp.Error.Message
		if len(resp.Error.Data) > 0 {
			text += " " + string(resp.Error.Data)
		}
		return text
	}
	return wire.ExtractResultText(resp.Result)
}

func scanSummary(r scanner.ScanResult) string {
	if len(r.Findings) == 0 {
		return "response scan flagged content"
	}
	return r.Findings[0].Message
}
