package wire

import "encoding/json"

// ContentBlock mirrors one element of an MCP tool result's "content" array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractResultText implements the MCP-result extraction algorithm of §4.3:
// if the result is a JSON string, use it directly ("string wins" — the
// resolved Open Question of DESIGN.md); else if it has a "content" array,
// concatenate the text of every block whose type is "text" with newline
// separators; otherwise canonical-stringify the whole result.
func ExtractResultText(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(result, &asString); err == nil {
		return asString
	}

	var withContent struct {
		Content []ContentBlock `json:"content"`
	}
	if err := json.Unmarshal(result, &withContent); err == nil && len(withContent.Content) > 0 {
		out := ""
		for i, block := range withContent.Content {
			if block.Type != "text" {
				continue
			}
			if i > 0 && out != "" {
				out += "\n"
			}
			out += block.Text
		}
		return out
	}

	return CanonicalStringify(result)
}

// CanonicalStringify re-marshals arbitrary JSON with sorted keys and no
// extraneous whitespace, used both for result fallback text and for the
// audit log's HMAC signing input (§9 "HMAC chain serialization").
func CanonicalStringify(data json.RawMessage) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, err := CanonicalJSON(v)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// CanonicalJSON serializes v deterministically: object keys sorted,
// compact (no insignificant whitespace), no trailing newline. Go's
// encoding/json already sorts map keys and emits compact output for
// map[string]any/struct values, so this is a thin documented wrapper rather
// than a custom writer — kept as its own function so every caller that
// needs the HMAC-signing invariant goes through one place.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// RebuildTextResult builds a result payload carrying a single redacted text
// content block, used when the response scanner's verdict is "redact".
func RebuildTextResult(text string) json.RawMessage {
	out, _ := json.Marshal(struct {
		Content []ContentBlock `json:"content"`
	}{Content: []ContentBlock{{Type: "text", Text: text}}})
	return out
}
