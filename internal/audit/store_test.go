package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T, cfg Config) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	cfg.FilePath = path
	s, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestLog_WritesLineAndBuffersEntry(t *testing.T) {
	s, path := tempStore(t, DefaultConfig())
	s.Log(Entry{Direction: DirectionRequest, Method: "tools/call", Tool: "read_file", Verdict: &Verdict{Action: "allow"}})

	require.Len(t, s.GetEntries(), 1)
	lines := readLines(t, path)
	require.Len(t, lines, 1)
	require.Equal(t, "read_file", lines[0]["tool"])
}

func TestLog_StatsTally(t *testing.T) {
	s, _ := tempStore(t, DefaultConfig())
	s.Log(Entry{Verdict: &Verdict{Action: "allow"}})
	s.Log(Entry{Verdict: &Verdict{Action: "deny"}})
	s.Log(Entry{Verdict: &Verdict{Action: "deny"}})
	s.Log(Entry{Verdict: &Verdict{Action: "prompt"}})

	stats := s.GetStats()
	require.Equal(t, Stats{Total: 4, Allowed: 1, Denied: 2, Prompted: 1}, stats)
}

func TestLog_RedactsSensitiveArguments(t *testing.T) {
	s, path := tempStore(t, DefaultConfig())
	s.Log(Entry{Arguments: map[string]any{
		"api_key": "sk-should-not-appear",
		"path":    "a.txt",
	}})

	lines := readLines(t, path)
	args := lines[0]["arguments"].(map[string]any)
	require.Equal(t, "[REDACTED]", args["api_key"])
	require.Equal(t, "a.txt", args["path"])
}

func TestLog_TruncatesLongArguments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxArgLength = 10
	s, path := tempStore(t, cfg)
	s.Log(Entry{Arguments: map[string]any{"content": "0123456789abcdef"}})

	lines := readLines(t, path)
	args := lines[0]["arguments"].(map[string]any)
	require.Equal(t, "0123456789...[truncated]", args["content"])
}

func TestLog_OnEntryCallback(t *testing.T) {
	s, _ := tempStore(t, DefaultConfig())
	var got Entry
	called := false
	s.SetOnEntry(func(e Entry) { called = true; got = e })

	s.Log(Entry{Tool: "write_file"})
	require.True(t, called)
	require.Equal(t, "write_file", got.Tool)
}

func TestSigning_ChainVerifies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signing = true
	cfg.SigningKey = "test-key"
	s, path := tempStore(t, cfg)

	for i := 0; i < 5; i++ {
		s.Log(Entry{Method: "tools/call", Timestamp: time.Now()})
	}
	require.NoError(t, s.Close())

	result, err := VerifyChain(path, "test-key")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 5, result.Entries)
	require.Equal(t, -1, result.FirstBroken)
}

func TestSigning_FirstSequenceIsOneWithGenesisPrev(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signing = true
	cfg.SigningKey = "k"
	s, path := tempStore(t, cfg)
	s.Log(Entry{Method: "tools/call"})

	lines := readLines(t, path)
	require.EqualValues(t, 1, lines[0]["_seq"])
	require.Len(t, lines[0]["_sig"].(string), 64)
}

func TestSigning_TamperedEntryBreaksChainFromThatPoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signing = true
	cfg.SigningKey = "test-key"
	s, path := tempStore(t, cfg)
	for i := 0; i < 5; i++ {
		s.Log(Entry{Method: "tools/call", Tool: "tool"})
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(data)
	require.Len(t, lines, 5)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[2], &entry))
	entry["tool"] = "tampered"
	tampered, err := json.Marshal(entry)
	require.NoError(t, err)
	lines[2] = tampered

	out := joinLines(lines)
	require.NoError(t, os.WriteFile(path, out, 0o600))

	result, err := VerifyChain(path, "test-key")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 2, result.FirstBroken)
	require.Equal(t, 5, result.Entries)
}

func TestSigning_WrongKeyBreaksFromStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signing = true
	cfg.SigningKey = "right-key"
	s, path := tempStore(t, cfg)
	s.Log(Entry{Method: "tools/call"})
	require.NoError(t, s.Close())

	result, err := VerifyChain(path, "wrong-key")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 0, result.FirstBroken)
}

func TestRotation_RenamesGenerationsOnThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSize = 1 // rotate after essentially every write
	cfg.MaxFiles = 2
	s, path := tempStore(t, cfg)

	s.Log(Entry{Method: "m1"})
	s.Log(Entry{Method: "m2"})
	s.Log(Entry{Method: "m3"})

	require.FileExists(t, path)
	require.FileExists(t, path+".1")
}

func TestNewStore_NoFilePathStillBuffersInMemory(t *testing.T) {
	s, err := NewStore(Config{Redact: true, MaxArgLength: 200, MaxFiles: 5})
	require.NoError(t, err)
	s.Log(Entry{Tool: "x"})
	require.Len(t, s.GetEntries(), 1)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}

func joinLines(lines [][]byte) []byte {
	var out []byte
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}
