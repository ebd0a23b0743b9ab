package policy

import (
	"regexp"
	"strings"

	"github.com/agentwall/agentwall/internal/apperr"
)

// maxGlobPatternLen rejects pathological patterns before they ever reach the
// regex compiler (§4.2: "patterns longer than 500 chars ... are rejected").
const maxGlobPatternLen = 500

// maxGlobWildcards bounds how many * / ? tokens the translator will expand;
// past this the resulting regex's backtracking cost is not worth bounding
// case-by-case, so the whole pattern is rejected.
const maxGlobWildcards = 64

// compiledGlob is a glob pattern translated to an anchored, case-insensitive
// regex, built once and reused across evaluations (per §9 "ship as a const
// table; compile once... never recompile per call" — here per-rule, since
// patterns come from the reloadable configuration rather than a fixed
// built-in table).
type compiledGlob struct {
	source      string
	re          *regexp.Regexp
	hasWildcard bool
}

// compileGlob translates one glob alternative into an anchored regex.
// Dotfile-awareness: a leading '*' never matches a value beginning with '.'
// unless the pattern itself begins with a literal '.', mirroring shell
// dotglob semantics at the start of the matched string.
func compileGlob(pattern string) (*compiledGlob, error) {
	if len(pattern) > maxGlobPatternLen {
		return nil, apperr.New(apperr.PatternRejected, "glob pattern exceeds maximum length")
	}

	var b strings.Builder
	b.WriteString("^")
	wildcards := 0
	dotfileGuardNeeded := !strings.HasPrefix(pattern, ".")

	for i, r := range pattern {
		switch r {
		case '*':
			wildcards++
			if i == 0 && dotfileGuardNeeded {
				b.WriteString(`(?:[^.].*|)`)
			} else {
				b.WriteString(".*")
			}
		case '?':
			wildcards++
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
		if wildcards > maxGlobWildcards {
			return nil, apperr.New(apperr.PatternRejected, "glob pattern exceeds translator's wildcard tolerance")
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile("(?is)" + b.String())
	if err != nil {
		return nil, apperr.Wrap(apperr.PatternRejected, err)
	}
	return &compiledGlob{source: pattern, re: re, hasWildcard: wildcards > 0}, nil
}

func (g *compiledGlob) match(s string) bool {
	return g.re.MatchString(s)
}

// matchToolPattern splits pattern on '|' and reports whether s matches any
// alternative via compiled glob (dotfile-aware) only — per §4.2 "Tool-name
// matching", each alternative is glob-matched against the tool name, with no
// substring fallback. A literal alternative with no '*'/'?' still compiles
// to an anchored regex, so it only matches an exact (case-insensitive) name.
func matchToolPattern(pattern, s string) bool {
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		cg, err := compileGlob(alt)
		if err != nil {
			continue
		}
		if cg.match(s) {
			return true
		}
	}
	return false
}

// matchAlternatives splits pattern on '|' and reports whether s matches any
// alternative via: compiled glob (dotfile-aware) when the alternative
// contains a wildcard, or — per §4.2 "Argument matching" — a case-insensitive
// substring check when it contains neither '*' nor '?'. This substring
// fallback is scoped to argument matching only; tool-name matching uses
// matchToolPattern instead.
func matchAlternatives(pattern, s string) bool {
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		cg, err := compileGlob(alt)
		if err != nil {
			continue
		}
		if cg.hasWildcard {
			if cg.match(s) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(s), strings.ToLower(alt)) {
			return true
		}
	}
	return false
}
