package audit

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/agentwall/agentwall/internal/safefile"
)

// VerifyResult is the class-level verifyChain(filePath, key) contract
// output (§4.8).
type VerifyResult struct {
	Valid bool
	// Entries is the count of signed lines walked.
	Entries int
	// FirstBroken is the 0-based index (among signed lines) of the first
	// signature mismatch, or -1 if the chain verified cleanly.
	FirstBroken int
}

// VerifyChain walks every line of the audit log at filePath and recomputes
// each signed entry's HMAC against the chain, per §4.8/§8.4: sig_k ==
// HMAC(key, canonical_json(entry_k) + "|" + sig_{k-1}), sig_0 = "genesis".
// Unsigned lines (no "_sig" field — e.g. signing was off when written) are
// counted but do not participate in the chain. A corrupted entry breaks
// verification from that point on for any downstream consumer, but this
// walk continues to completion so callers learn the full entry count.
func VerifyChain(filePath, key string) (VerifyResult, error) {
	data, err := safefile.ReadFile(filePath)
	if err != nil {
		return VerifyResult{}, err
	}

	prev := genesisSignature
	result := VerifyResult{FirstBroken: -1}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var generic map[string]any
		if err := json.Unmarshal(line, &generic); err != nil {
			if result.FirstBroken == -1 {
				result.FirstBroken = result.Entries
			}
			result.Entries++
			continue
		}

		sigVal, hasSig := generic["_sig"]
		if !hasSig {
			result.Entries++
			continue
		}
		sig, _ := sigVal.(string)

		delete(generic, "_seq")
		delete(generic, "_sig")
		canon, err := json.Marshal(generic)
		if err != nil {
			if result.FirstBroken == -1 {
				result.FirstBroken = result.Entries
			}
			result.Entries++
			continue
		}

		mac := hmac.New(sha256.New, []byte(key))
		mac.Write(canon)
		mac.Write([]byte("|"))
		mac.Write([]byte(prev))
		expect := hex.EncodeToString(mac.Sum(nil))

		if expect != sig && result.FirstBroken == -1 {
			result.FirstBroken = result.Entries
		}
		prev = sig
		result.Entries++
	}

	result.Valid = result.FirstBroken == -1
	return result, nil
}
