package policy

// Action is a policy verdict action.
type Action string

const (
	Allow  Action = "allow"
	Deny   Action = "deny"
	Prompt Action = "prompt"
)

// Mode selects the engine's behavior when no rule matches.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeStrict   Mode = "strict"
)

// RateLimit configures a sliding-window limiter attached to either the
// whole configuration (globalRateLimit) or one rule.
type RateLimit struct {
	MaxCalls      int
	WindowSeconds int
}

// ArgumentMatch is the {arguments: mapping<string,string>} match block of a
// PolicyRule; key is an argument key (subject to alias resolution), value
// is a '|'-joined glob/substring pattern.
type ArgumentMatch map[string]string

// Rule is one ordered PolicyRule (§3).
type Rule struct {
	Name        string
	ToolPattern string
	Match       ArgumentMatch
	Action      Action
	Message     string
	RateLimit   *RateLimit
}

// Config is the immutable Policy Configuration snapshot (§3). A new Config
// is swapped in atomically by Evaluator.UpdateConfig.
type Config struct {
	Version         int
	Mode            Mode
	DefaultAction   Action
	GlobalRateLimit *RateLimit
	Rules           []Rule
}

// Verdict is the {action, rule, message} tuple the engine returns for every
// evaluated call (§4.2 Contract). Rule is empty when no named rule applied.
type Verdict struct {
	Action  Action
	Rule    string
	Message string
}
