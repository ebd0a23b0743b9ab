package scanner

import "regexp"

// Category is the class of content a pattern detects.
type Category string

const (
	CategorySecrets      Category = "secrets"
	CategoryExfiltration Category = "exfiltration"
	CategoryPII          Category = "pii"
)

// pattern is one compiled entry in the built-in library. Grounded on the
// teacher's internal/engine/scanner.go credentialPatterns table — that file
// redacts a flat list of secret regexes; here the same idea is generalized
// into named, categorized entries carrying their own default action, per
// §4.3. The original TypeScript reference these regexes were distilled from
// was filtered out of the retrieval pack (original_source/ kept 0 files), so
// these are constructed from the documented pattern names and semantics
// rather than copied from an unavailable upstream byte-for-byte (see
// DESIGN.md).
type pattern struct {
	Name     string
	Category Category
	Action   Action
	re       *regexp.Regexp
}

// builtinSecrets mirrors the teacher's credentialPatterns list, split into
// named entries and given an explicit action per §4.3's built-in table.
var builtinSecrets = []pattern{
	{Name: "aws-access-key", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{Name: "aws-secret-key", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`(?i)aws(.{0,20})?secret(.{0,20})?['"\s:=]+[A-Za-z0-9/+=]{40}`)},
	{Name: "github-token", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{10,}|github_pat_[A-Za-z0-9_]{10,}`)},
	{Name: "openai-api-key", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`sk-(?:proj-|ant-)?[A-Za-z0-9_-]{20,}`)},
	{Name: "generic-api-key", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`(?i)api[_-]?key['"\s:=]+[A-Za-z0-9_-]{16,}`)},
	{Name: "bearer-token", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`)},
	{Name: "jwt-token", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{Name: "private-key", Category: CategorySecrets, Action: Block, re: regexp.MustCompile(`-----BEGIN[A-Z ]*PRIVATE KEY-----`)},
	{Name: "certificate", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`-----BEGIN CERTIFICATE-----`)},
	{Name: "database-url", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`(?i)(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis)://[^\s"'<>]+:[^\s"'<>@]+@[^\s"'<>]+`)},
	{Name: "password-assignment", Category: CategorySecrets, Action: Redact, re: regexp.MustCompile(`(?i)password['"\s:=]+\S{6,}`)},
	{Name: "large-base64-blob", Category: CategoryExfiltration, Action: Pass, re: regexp.MustCompile(`(?:[A-Za-z0-9+/]{4}){50,}={0,2}`)},
	{Name: "hex-dump", Category: CategoryExfiltration, Action: Pass, re: regexp.MustCompile(`(?:[0-9a-fA-F]{2}[\s:]){32,}[0-9a-fA-F]{2}`)},
}

// builtinPII mirrors §4.3's pii category table.
var builtinPII = []pattern{
	{Name: "email-address", Category: CategoryPII, Action: Redact, re: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{Name: "phone-number", Category: CategoryPII, Action: Redact, re: regexp.MustCompile(`\+?\d{1,2}[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{Name: "ssn", Category: CategoryPII, Action: Block, re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{Name: "credit-card", Category: CategoryPII, Action: Block, re: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{Name: "ip-address", Category: CategoryPII, Action: Pass, re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}
