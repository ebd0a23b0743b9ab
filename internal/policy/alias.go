package policy

import "strings"

// aliasTable maps a canonical argument key to every alias the spec
// documents (§4.2). Lookup is case-insensitive.
var aliasTable = map[string][]string{
	"path":    {"file", "filepath", "file_path", "filename", "file_name", "target", "source", "destination", "dest", "src", "uri", "url"},
	"command": {"cmd", "shell", "exec", "script", "run"},
	"content": {"text", "body", "data", "input", "message"},
}

// aliasLookup is the case-insensitive reverse index: alias -> canonical key,
// including each canonical key mapping to itself.
var aliasLookup = buildAliasLookup()

func buildAliasLookup() map[string]string {
	m := map[string]string{}
	for canon, aliases := range aliasTable {
		m[strings.ToLower(canon)] = canon
		for _, a := range aliases {
			m[strings.ToLower(a)] = canon
		}
	}
	return m
}

// resolveArgument looks up key's value in args by (a) exact key, (b)
// case-insensitive key match, (c) the alias table — trying the rule's key
// itself first, then every alias that maps to the same canonical group as
// key, returning the first hit.
func resolveArgument(args map[string]any, key string) (any, bool) {
	if v, ok := args[key]; ok {
		return v, true
	}

	lowerKey := strings.ToLower(key)
	for k, v := range args {
		if strings.ToLower(k) == lowerKey {
			return v, true
		}
	}

	canon, isAliased := aliasLookup[lowerKey]
	if !isAliased {
		return nil, false
	}
	// Try the canonical key itself, then every alias for that group, in the
	// table's declared order — "the first alias found yields the value".
	candidates := append([]string{canon}, aliasTable[canon]...)
	for _, cand := range candidates {
		if cand == lowerKey {
			continue
		}
		for k, v := range args {
			if strings.ToLower(k) == cand {
				return v, true
			}
		}
	}
	return nil, false
}
