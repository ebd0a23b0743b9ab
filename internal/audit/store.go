package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/agentwall/agentwall/internal/apperr"
	"github.com/agentwall/agentwall/internal/safefile"
)

const (
	genesisSignature    = "genesis"
	defaultMaxArgLength = 200
	defaultMaxFiles     = 5
)

// redactKeyPattern matches argument keys whose values are replaced with
// "[REDACTED]" before an entry is ever written, per §4.8 Redaction.
var redactKeyPattern = regexp.MustCompile(`(?i)password|secret|token|api[_-]?key|auth|credential|private[_-]?key|access[_-]?key`)

// Config configures one Store's redaction, signing, and rotation behavior.
type Config struct {
	// FilePath is where entries are appended. Empty disables file output
	// (the Store still buffers entries in memory and invokes onEntry).
	FilePath string
	// StderrMirror additionally writes every line to stderr.
	StderrMirror bool
	// Redact enables the §4.8 argument-redaction pass. Default true.
	Redact bool
	// MaxArgLength truncates string argument values longer than this.
	// Default 200.
	MaxArgLength int
	// Signing enables HMAC chain signing of persisted entries.
	Signing    bool
	SigningKey string
	// MaxFileSize, if > 0, triggers rotation once the current file has
	// had at least this many bytes written to it in this process.
	MaxFileSize int64
	// MaxFiles bounds how many rotated generations are kept. Default 5.
	MaxFiles int
}

// DefaultConfig matches §4.8's stated defaults (redaction on, 200-char
// argument cap, 5 rotated generations).
func DefaultConfig() Config {
	return Config{Redact: true, MaxArgLength: defaultMaxArgLength, MaxFiles: defaultMaxFiles}
}

// Store is the Audit Log (§4.8): append-only, optionally chain-signed, with
// a memory-resident buffer of every entry logged in this process run (for
// dashboard queries) and a single onEntry callback the dashboard bridge
// registers against.
type Store struct {
	mu sync.Mutex

	cfg           Config
	file          *os.File
	bytesWritten  int64
	sequence      uint64
	prevSignature string

	entries []Entry
	stats   Stats
	onEntry func(Entry)
}

// NewStore opens (or creates) the audit log file per cfg and returns a
// ready Store. A zero Config.FilePath is valid — the Store then only
// buffers in memory and fans out to onEntry, useful for tests and for
// programmatic embedding without a file.
func NewStore(cfg Config) (*Store, error) {
	if cfg.MaxArgLength <= 0 {
		cfg.MaxArgLength = defaultMaxArgLength
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	s := &Store{cfg: cfg, prevSignature: genesisSignature}
	if cfg.FilePath != "" {
		f, err := s.openFile()
		if err != nil {
			return nil, err
		}
		s.file = f
	}
	return s, nil
}

// openFile opens cfg.FilePath for append, rejecting a symlinked path per
// the same safefile discipline the teacher applied to its SQLite path.
func (s *Store) openFile() (*os.File, error) {
	path := s.cfg.FilePath
	if _, err := os.Stat(path); err == nil {
		if err := safefile.RejectSymlink(path); err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, apperr.Wrap(apperr.IOError, fmt.Errorf("opening audit log: %w", err))
	}
	if info, err := f.Stat(); err == nil {
		s.bytesWritten = info.Size()
	}
	return f, nil
}

// SetOnEntry registers the callback invoked synchronously after every Log
// call (§4.8 setOnEntry). A nil callback disables the fan-out.
func (s *Store) SetOnEntry(cb func(Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEntry = cb
}

// Log appends entry: redacts its arguments (if enabled), signs and writes
// it (if a file is configured), buffers it in memory, updates the running
// stats, and fans it out to onEntry. A write failure is an IOError per §7
// — best-effort, never fatal; the entry is still buffered and forwarded.
func (s *Store) Log(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Redact {
		entry.Arguments = redactArguments(entry.Arguments, s.cfg.MaxArgLength)
	}

	if line, err := s.persistLocked(&entry); err == nil {
		s.writeLocked(line)
	}

	s.entries = append(s.entries, entry)
	s.stats.Total++
	if entry.Verdict != nil {
		switch entry.Verdict.Action {
		case "allow":
			s.stats.Allowed++
		case "deny":
			s.stats.Denied++
		case "prompt":
			s.stats.Prompted++
		}
	}

	if s.onEntry != nil {
		s.onEntry(entry)
	}
}

// persistLocked computes the signature (if enabled) and returns the
// serialized line to write, mutating entry.Sequence/Signature so the
// in-memory buffer reflects exactly what was persisted.
func (s *Store) persistLocked(entry *Entry) ([]byte, error) {
	if s.cfg.Signing {
		canon, err := canonicalJSON(*entry)
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, err)
		}
		mac := hmac.New(sha256.New, []byte(s.cfg.SigningKey))
		mac.Write(canon)
		mac.Write([]byte("|"))
		mac.Write([]byte(s.prevSignature))
		sig := hex.EncodeToString(mac.Sum(nil))

		s.sequence++
		entry.Sequence = s.sequence
		entry.Signature = sig
		s.prevSignature = sig
	}
	return persistedLine(*entry)
}

// writeLocked appends line to the current file and/or stderr, then rotates
// if the size threshold was crossed.
func (s *Store) writeLocked(line []byte) {
	if s.cfg.StderrMirror {
		fmt.Fprintln(os.Stderr, string(line))
	}
	if s.file == nil {
		return
	}
	n, err := s.file.Write(append(line, '\n'))
	if err != nil {
		return
	}
	s.bytesWritten += int64(n)
	if s.cfg.MaxFileSize > 0 && s.bytesWritten >= s.cfg.MaxFileSize {
		s.rotateLocked()
	}
}

// rotateLocked implements §4.8's rotation scheme: delete the oldest
// generation, shift every remaining generation up by one, rename the
// current file to ".1", and open a fresh current file.
func (s *Store) rotateLocked() {
	path := s.cfg.FilePath
	_ = s.file.Close()

	_ = os.Remove(fmt.Sprintf("%s.%d", path, s.cfg.MaxFiles))
	for k := s.cfg.MaxFiles - 1; k >= 1; k-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, k), fmt.Sprintf("%s.%d", path, k+1))
	}
	_ = os.Rename(path, path+".1")

	f, err := s.openFile()
	if err != nil {
		s.file = nil
		return
	}
	s.file = f
	s.bytesWritten = 0
}

// GetEntries returns a copy of every entry logged in this process run.
func (s *Store) GetEntries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// GetStats returns the running allow/deny/prompt tally.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the underlying file, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// redactArguments applies §4.8's key-pattern and length-truncation rules to
// a shallow copy of args; the input map is never mutated.
func redactArguments(args map[string]any, maxLen int) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if redactKeyPattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && len(str) > maxLen {
			out[k] = str[:maxLen] + "...[truncated]"
			continue
		}
		out[k] = v
	}
	return out
}
