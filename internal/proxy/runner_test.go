package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwall/agentwall/internal/policy"
	"github.com/agentwall/agentwall/internal/wire"
)

// echoServerScript is a tiny newline-JSON "tool server": for every
// tools/call request it reads, it writes back a trivial success response
// carrying the request's own id. It stands in for a real MCP tool server
// in Runner tests without requiring network access or a prebuilt binary.
const echoServerScript = `
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"jsonrpc":"2.0","id":%s,"result":"ok"}\n' "$id"
done
`

func TestRunner_ForwardsAllowedCallAndRelaysResponse(t *testing.T) {
	policyEval := policy.NewEvaluator(policy.Config{DefaultAction: policy.Allow})
	e := NewEngine(Config{Policy: policyEval, Audit: newTestAudit(t)})

	clientIn := strings.NewReader(string(toolCallRequest(t, 1, "read_file", map[string]any{"path": "a.txt"})) + "\n")
	var clientOut bytes.Buffer

	runner := NewRunner(e, clientIn, &clientOut, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := runner.Run(ctx, "/bin/sh", []string{"-c", echoServerScript})
	require.NoError(t, err)

	scanner := bufio.NewScanner(&clientOut)
	require.True(t, scanner.Scan(), "expected one relayed response line")
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	var result string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "ok", result)
}

func TestRunner_DeniedCallNeverReachesChild(t *testing.T) {
	policyEval := policy.NewEvaluator(policy.Config{
		DefaultAction: policy.Allow,
		Rules: []policy.Rule{
			{Name: "block-delete", ToolPattern: "delete_*", Action: policy.Deny, Message: "nope"},
		},
	})
	e := NewEngine(Config{Policy: policyEval, Audit: newTestAudit(t)})

	clientIn := strings.NewReader(string(toolCallRequest(t, 1, "delete_file", nil)) + "\n")
	var clientOut bytes.Buffer

	runner := NewRunner(e, clientIn, &clientOut, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// The child here never writes anything back; if the deny response
	// didn't short-circuit at the engine, this test would hang waiting on
	// output that never arrives from /bin/cat.
	err := runner.Run(ctx, "/bin/cat", nil)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&clientOut)
	require.True(t, scanner.Scan())
	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "nope")
}

// TestRunner_PromptDoesNotBlockConcurrentRequests exercises §5's "further
// client messages continue to be processed" requirement directly: a prompt
// verdict whose approval callback is gated open by the test must not stall
// the read loop from forwarding and relaying a second, unrelated call.
func TestRunner_PromptDoesNotBlockConcurrentRequests(t *testing.T) {
	gate := make(chan struct{})
	policyEval := policy.NewEvaluator(policy.Config{
		DefaultAction: policy.Allow,
		Rules: []policy.Rule{
			{Name: "approve-slow", ToolPattern: "slow_tool", Action: policy.Prompt},
		},
	})
	e := NewEngine(Config{
		Policy: policyEval,
		Audit:  newTestAudit(t),
		Approve: func(call wire.ToolCall) bool {
			<-gate
			return true
		},
	})

	// clientIn stays open (no EOF) for the whole exchange: Runner begins its
	// shutdown sequence as soon as either direction ends, and an early EOF
	// here would tear the child down before slow_tool's gated approval ever
	// resolves.
	clientInR, clientInW := io.Pipe()
	clientOutR, clientOutW := io.Pipe()

	runner := NewRunner(e, clientInR, clientOutW, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx, "/bin/sh", []string{"-c", echoServerScript}) }()

	go func() {
		_, _ = clientInW.Write(toolCallRequest(t, 1, "slow_tool", nil))
		_, _ = clientInW.Write([]byte("\n"))
		_, _ = clientInW.Write(toolCallRequest(t, 2, "read_file", nil))
		_, _ = clientInW.Write([]byte("\n"))
	}()

	lineScanner := bufio.NewScanner(clientOutR)

	require.True(t, lineScanner.Scan(), "expected the non-prompted call's response first")
	var first jsonrpc.Response
	require.NoError(t, json.Unmarshal(lineScanner.Bytes(), &first))
	assert.Equal(t, jsonrpc.Int64ID(2), first.ID,
		"read_file's response must arrive while slow_tool's approval is still pending")

	close(gate)

	require.True(t, lineScanner.Scan(), "expected the prompted call's response once approval resolves")
	var second jsonrpc.Response
	require.NoError(t, json.Unmarshal(lineScanner.Bytes(), &second))
	assert.Equal(t, jsonrpc.Int64ID(1), second.ID)

	require.NoError(t, clientInW.Close())
	require.NoError(t, <-runErr)
}
