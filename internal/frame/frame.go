// Package frame accumulates raw byte chunks from a stream and extracts
// complete newline-delimited JSON-RPC messages, enforcing a maximum
// buffered size. Grounded on the teacher's internal/proxy/stdio.go, which
// reads framed lines via a bufio.Scanner sized with explicit buffer/max
// limits; here the accumulation is made explicit (append/readMessage/
// readAll/clear) so the proxy engine can drive it from raw io.Reader bytes
// without requiring a blocking Scan() call per message.
package frame

import (
	"bytes"
	"encoding/json"

	"github.com/agentwall/agentwall/internal/apperr"
)

// DefaultMaxBufferedBytes is the default cap on pending (unframed) bytes.
const DefaultMaxBufferedBytes = 10 * 1024 * 1024 // 10 MiB

// Parser accumulates bytes and extracts newline-framed messages. Not safe
// for concurrent use without external synchronization — the proxy engine
// owns one Parser per direction and drives it from its own read loop
// (§3 Ownership: "the proxy engine owns... both frame parsers").
type Parser struct {
	buf    []byte
	maxLen int
}

// New creates a Parser with the given maximum buffered size. A maxLen <= 0
// uses DefaultMaxBufferedBytes.
func New(maxLen int) *Parser {
	if maxLen <= 0 {
		maxLen = DefaultMaxBufferedBytes
	}
	return &Parser{maxLen: maxLen}
}

// Append adds bytes to the pending buffer. If the resulting buffer would
// exceed maxLen, the buffer is cleared and a BufferOverflow error is
// returned — per §7, the caller recovers by clearing the affected parser,
// emitting an engine error, and continuing.
func (p *Parser) Append(chunk []byte) error {
	if len(p.buf)+len(chunk) > p.maxLen {
		p.buf = nil
		return apperr.New(apperr.BufferOverflow, "frame buffer exceeded maximum size")
	}
	p.buf = append(p.buf, chunk...)
	return nil
}

// ReadMessage extracts the next complete line from the buffer, parses it as
// JSON-RPC, and returns it. ok is false when no complete line is buffered
// yet. A non-nil error means a line was present but failed to parse or
// validate (InvalidMessage); the line is still consumed so the stream can
// continue.
func (p *Parser) ReadMessage() (line []byte, ok bool, err error) {
	idx := bytes.IndexByte(p.buf, '\n')
	if idx < 0 {
		return nil, false, nil
	}
	raw := p.buf[:idx]
	p.buf = p.buf[idx+1:]
	raw = bytes.TrimSuffix(raw, []byte("\r"))

	if len(bytes.TrimSpace(raw)) == 0 {
		// Empty lines are skipped silently, not surfaced as a message.
		return p.ReadMessage()
	}

	if err := validateJSONRPCShape(raw); err != nil {
		return nil, true, apperr.Wrap(apperr.InvalidMessage, err)
	}
	return raw, true, nil
}

// ReadAll drains every complete message currently buffered. Malformed lines
// are reported via errs at the same index as their position in lines (nil
// entries for lines with no error); both slices always have equal length.
func (p *Parser) ReadAll() (lines [][]byte, errs []error) {
	for {
		line, ok, err := p.ReadMessage()
		if !ok {
			return lines, errs
		}
		lines = append(lines, line)
		errs = append(errs, err)
	}
}

// Clear discards any pending partial/unread bytes (used after BufferOverflow
// or when the parser's owner is torn down).
func (p *Parser) Clear() {
	p.buf = nil
}

// PendingBytes reports how many unconsumed bytes are currently buffered.
func (p *Parser) PendingBytes() int {
	return len(p.buf)
}

// validateJSONRPCShape parses raw as JSON and checks it matches one of the
// three JSON-RPC 2.0 variants named in §3: request (id + method),
// notification (method, no id), response (id + one of result/error).
func validateJSONRPCShape(raw []byte) error {
	var generic struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	isRequestOrNotification := generic.Method != ""
	isResponse := len(generic.Result) > 0 || len(generic.Error) > 0
	if !isRequestOrNotification && !isResponse {
		return &shapeError{"message matches neither request/notification nor response variant"}
	}
	return nil
}

type shapeError struct{ msg string }

func (e *shapeError) Error() string { return e.msg }
