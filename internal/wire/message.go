// Package wire implements the tagged JSON-RPC message model the proxy
// engine operates on: parsing a line into a request, notification, or
// response; extracting tool-call parameters; and synthesizing the
// JSON-RPC errors the core emits. It is a thin, proxy-specific wrapper
// around the MCP SDK's jsonrpc types, in the idiom of an MCP proxy
// wrapping the wire message with direction/timestamp metadata rather than
// hand-rolling JSON-RPC structs.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/agentwall/agentwall/internal/apperr"
)

// Direction indicates which way a message is flowing through the proxy.
type Direction int

const (
	// ClientToServer: a message the agent host sent toward the tool server.
	ClientToServer Direction = iota
	// ServerToClient: a message the tool server sent back toward the agent host.
	ServerToClient
)

func (d Direction) String() string {
	if d == ServerToClient {
		return "server->client"
	}
	return "client->server"
}

// ToolCallMethod is the JSON-RPC method name the pipeline inspects.
const ToolCallMethod = "tools/call"

// Error codes synthesized by the core (§6).
const (
	CodePolicyDenial    = -32001
	CodeAwaitingApproval = -32002
)

// ErrorPrefix is prepended to every synthesized error message.
const ErrorPrefix = "Agent Wall: "

// Message wraps one decoded JSON-RPC line with proxy metadata. Decoded is
// either *jsonrpc.Request (covers both requests and notifications — a
// notification is a Request whose ID is the zero value) or *jsonrpc.Response.
// Messages are immutable after parsing: nothing in this package mutates a
// Message's fields once returned from Decode.
type Message struct {
	Raw       []byte
	Direction Direction
	Decoded   jsonrpc.Message
	Timestamp time.Time
}

// Decode parses one line of framed bytes into a Message. A parse or schema
// failure is reported as apperr.InvalidMessage; callers drop the line and
// continue per §7.
func Decode(line []byte, dir Direction) (*Message, error) {
	decoded, err := jsonrpc.DecodeMessage(line)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidMessage, fmt.Errorf("decoding json-rpc line: %w", err))
	}
	return &Message{
		Raw:       line,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}, nil
}

// Encode serializes a jsonrpc.Message back to its wire line (without the
// trailing newline; callers append it when writing to a stream).
func Encode(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// IsRequest reports whether the decoded message is a *jsonrpc.Request with
// a non-zero ID (i.e. a call awaiting a response, not a notification).
func (m *Message) IsRequest() bool {
	req, ok := m.Decoded.(*jsonrpc.Request)
	return ok && req.ID != (jsonrpc.ID{})
}

// IsNotification reports whether the decoded message is a *jsonrpc.Request
// with a zero ID.
func (m *Message) IsNotification() bool {
	req, ok := m.Decoded.(*jsonrpc.Request)
	return ok && req.ID == (jsonrpc.ID{})
}

// IsResponse reports whether the decoded message is a *jsonrpc.Response.
func (m *Message) IsResponse() bool {
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name for a request/notification, or "" otherwise.
func (m *Message) Method() string {
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall reports whether this message is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.IsRequest() && m.Method() == ToolCallMethod
}

// Request returns the underlying request, or nil if this isn't one.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying response, or nil if this isn't one.
func (m *Message) Response() *jsonrpc.Response {
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ID returns the message's JSON-RPC id as a comparable key suitable for the
// pending-call table, or ok=false if this message carries no id (a
// notification).
func (m *Message) ID() (jsonrpc.ID, bool) {
	switch v := m.Decoded.(type) {
	case *jsonrpc.Request:
		if v.ID == (jsonrpc.ID{}) {
			return jsonrpc.ID{}, false
		}
		return v.ID, true
	case *jsonrpc.Response:
		return v.ID, true
	default:
		return jsonrpc.ID{}, false
	}
}

// NewErrorResponse synthesizes a JSON-RPC error response for the given id,
// code, and reason. The message is prefixed with ErrorPrefix per §6.
func NewErrorResponse(id jsonrpc.ID, code int64, reason string) *jsonrpc.Response {
	return &jsonrpc.Response{
		ID: id,
		Error: &jsonrpc.Error{
			Code:    code,
			Message: ErrorPrefix + reason,
		},
	}
}

// ExtractResultText pulls the scannable text out of a tools/call response's
// result payload, per §9's resolved Open Question: a raw string result wins
// outright; otherwise every text content block is concatenated with
// newlines. Grounded on the teacher's stdio.go extractContent, which walks
// the same {content: [{type, text}]} shape.
func ExtractResultText(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(result, &asString); err == nil {
		return asString
	}

	var shaped struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &shaped); err != nil {
		return ""
	}
	var texts []string
	for _, c := range shaped.Content {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	if len(texts) == 0 {
		return ""
	}
	out := texts[0]
	for _, t := range texts[1:] {
		out += "\n" + t
	}
	return out
}

// RebuildRedactedResult replaces a tools/call response's result with a
// single text content block carrying redactedText, preserving the original
// result shape's other top-level behavior by discarding it outright — per
// §4.9 response pipeline step 3's redact path, the client only ever needs
// to see the redacted text.
func RebuildRedactedResult(redactedText string) json.RawMessage {
	shaped := struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}{
		Content: []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{{Type: "text", Text: redactedText}},
	}
	raw, err := json.Marshal(shaped)
	if err != nil {
		return json.RawMessage(`{"content":[{"type":"text","text":"[REDACTED]"}]}`)
	}
	return raw
}

// ToolCall is the decoded {name, arguments} payload of a tools/call request.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ExtractToolCall parses a tools/call request's params into a ToolCall.
// Returns an error if params are missing or malformed; callers should treat
// that as InvalidMessage-equivalent (deny, don't crash).
func ExtractToolCall(req *jsonrpc.Request) (*ToolCall, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	var raw struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) == 0 {
		return &ToolCall{}, nil
	}
	if err := json.Unmarshal(req.Params, &raw); err != nil {
		return nil, apperr.Wrap(apperr.InvalidMessage, fmt.Errorf("decoding tools/call params: %w", err))
	}
	if raw.Arguments == nil {
		raw.Arguments = map[string]any{}
	}
	return &ToolCall{Name: raw.Name, Arguments: raw.Arguments}, nil
}
