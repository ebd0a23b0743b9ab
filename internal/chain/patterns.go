package chain

// Severity ranks how dangerous a matched chain pattern is judged to be.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// patternDef is one built-in tool-call-chain signature, per §4.7. Sequence
// holds one '|'-joined glob per slot; a pattern matches when the last
// len(Sequence) recorded calls match each slot in order.
type patternDef struct {
	Name           string
	Severity       Severity
	TrackArguments bool
	Sequence       []string
}

// ChainPattern is a user-supplied chain signature (security.chainDetection.
// customChains in the external config schema). It has the same shape and
// matching rules as a built-in patternDef.
type ChainPattern struct {
	Name           string
	Severity       Severity
	TrackArguments bool
	Sequence       []string
}

var builtinPatterns = []patternDef{
	{
		Name:     "read-then-network",
		Severity: SeverityHigh,
		Sequence: []string{"read_*|get_*|view_*", "shell_*|run_*|execute_*|bash"},
	},
	{
		Name:     "read-write-send",
		Severity: SeverityCritical,
		Sequence: []string{"read_*|get_*", "write_*|create_*", "shell_*|run_*|bash"},
	},
	{
		Name:           "env-then-network",
		Severity:       SeverityCritical,
		TrackArguments: true,
		Sequence:       []string{"read_*|get_*|view_*", "shell_*|run_*|execute_*|bash"},
	},
	{
		Name:     "directory-scan",
		Severity: SeverityMedium,
		Sequence: []string{"list_*|ls", "list_*|ls", "list_*|ls", "read_*|get_*"},
	},
	{
		Name:     "write-execute",
		Severity: SeverityHigh,
		Sequence: []string{"write_*|create_*", "shell_*|run_*|bash"},
	},
	{
		Name:     "write-chmod-execute",
		Severity: SeverityCritical,
		Sequence: []string{"write_*|create_*", "shell_*|run_*|bash", "shell_*|run_*|bash"},
	},
	{
		Name:           "read-sensitive-then-write",
		Severity:       SeverityMedium,
		TrackArguments: true,
		Sequence:       []string{"read_*|get_*", "write_*|create_*|edit_*"},
	},
	{
		Name:     "shell-burst",
		Severity: SeverityHigh,
		Sequence: []string{"shell_*|run_*|bash", "shell_*|run_*|bash", "shell_*|run_*|bash", "shell_*|run_*|bash"},
	},
}
