package audit

import "encoding/json"

// canonicalJSON serializes entry's base fields deterministically: sorted
// keys, no extraneous whitespace, no trailing newline (§9 "HMAC chain
// serialization must be deterministic"). encoding/json already sorts
// map[string]any keys lexicographically and produces compact output by
// default, so round-tripping the struct through a generic map is enough —
// no hand-rolled key sort is needed. Sequence/Signature carry json:"-" tags
// on Entry, so they are never part of this form even before it is computed.
func canonicalJSON(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// persistedLine serializes entry for the on-disk JSON-lines form: the same
// canonical base fields, plus "_seq"/"_sig" when signing populated them —
// those two fields are added outside the canonical form per §9.
func persistedLine(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	if e.Signature != "" {
		generic["_seq"] = e.Sequence
		generic["_sig"] = e.Signature
	}
	return json.Marshal(generic)
}
