package functions

import (
	"fmt"
	"regexp"
	"strings"
)

type regex struct {
	*regexp.Regexp
	CaseInsensitive bool
}

// compileRegex validates the regex parameter string and compiles the pattern with leftmost-longest semantics.
// Parameters are 'c' (case-sensitive) or 'i' (case-insensitive), plus 'e' (sub-matches) where supported.
func compileRegex(kind StringOpKind, pattern, params string, supportsSubMatches bool) (*regex, error) {
	var caseSensitive, caseInsensitive bool
	for _, c := range params {
		switch c {
		case 'c':
			caseSensitive = true
		case 'i':
			caseInsensitive = true
		case 'e':
			if !supportsSubMatches {
				return nil, fmt.Errorf("%w: %s does not support 'e' (sub-matches) option", ErrInvalidParameter, kind)
			}
		default:
			if supportsSubMatches {
				return nil, fmt.Errorf("%w: unrecognized regex parameter %q for %s, expected either 'c' 'i', or 'e'", ErrInvalidParameter, c, kind)
			}
			return nil, fmt.Errorf("%w: unrecognized regex parameter %q for %s, expected either 'c' or 'i'", ErrInvalidParameter, c, kind)
		}
	}
	if !caseSensitive && !caseInsensitive {
		return nil, fmt.Errorf("%w: %s params must either specify case-sensitivity ('c') or case-insensitivity ('i')", ErrInvalidParameter, kind)
	}
	if caseSensitive && caseInsensitive {
		return nil, fmt.Errorf("%w: %s params cannot specify both case-sensitivity ('c') and case-insensitivity ('i')", ErrInvalidParameter, kind)
	}

	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s pattern %q: %s", ErrInvalidParameter, kind, pattern, err)
	}
	re.Longest()
	return &regex{Regexp: re, CaseInsensitive: caseInsensitive}, nil
}

// expandTemplate translates a replacement in the $&, $n, $$ notation into the regexp package's ${n} notation.
func expandTemplate(replacement string) string {
	var sb strings.Builder
	for i := 0; i < len(replacement); i++ {
		c := replacement[i]
		if c != '$' || i+1 == len(replacement) {
			sb.WriteByte(c)
			continue
		}
		next := replacement[i+1]
		switch {
		case next == '&':
			sb.WriteString("${0}")
			i++
		case next == '$':
			sb.WriteString("$$")
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(replacement) && replacement[j] >= '0' && replacement[j] <= '9' {
				j++
			}
			sb.WriteString("${")
			sb.WriteString(replacement[i+1 : j])
			sb.WriteString("}")
			i = j - 1
		default:
			sb.WriteString("$$")
		}
	}
	return sb.String()
}
