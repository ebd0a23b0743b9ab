package scanner

import (
	"regexp"

	"github.com/agentwall/agentwall/internal/apperr"
)

const maxUserPatternLen = 1000

// dangerousShapes is the small blacklist of regex shapes known to cause
// catastrophic backtracking in a backtracking engine, per §4.3. Go's RE2
// engine does not itself backtrack, but the screen is kept anyway so a
// custom pattern behaves identically whether it later runs here or against
// a backtracking engine downstream (e.g. the dashboard's client-side
// highlighter), and so obviously pathological input is rejected on its face.
var dangerousShapes = []*regexp.Regexp{
	regexp.MustCompile(`\([^)]*[+*]\)[+*]`),           // nested quantifier: (x+)+ / (x*)*
	regexp.MustCompile(`\([^)]*[+*][^)]*\|[^)]*\)[+*]`), // alternation of quantified groups, then quantified again
	regexp.MustCompile(`\\[1-9][+*]`),                 // backreference followed by a quantifier
}

// compileUserPattern screens then compiles a custom pattern string. Rejection
// is non-fatal to the caller: it returns apperr.PatternRejected so the
// scanner can record it and continue with the remaining patterns.
func compileUserPattern(src string) (*regexp.Regexp, error) {
	if len(src) > maxUserPatternLen {
		return nil, apperr.New(apperr.PatternRejected, "pattern exceeds maximum length")
	}
	for _, shape := range dangerousShapes {
		if shape.MatchString(src) {
			return nil, apperr.New(apperr.PatternRejected, "pattern matches a known ReDoS-prone shape")
		}
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, apperr.Wrap(apperr.PatternRejected, err)
	}
	return re, nil
}
