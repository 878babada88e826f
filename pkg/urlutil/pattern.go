package urlutil

import "regexp"

// globToRegexp compiles a shell-style glob (where "*" matches any run of
// characters and "?" matches exactly one) into an anchored,
// case-insensitive regexp.
func globToRegexp(glob string) *regexp.Regexp {
	var b []byte
	b = append(b, '(', '?', 'i', ')', '^')
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b = append(b, '.', '*')
		case '?':
			b = append(b, '.')
		default:
			if isRegexpMeta(c) {
				b = append(b, '\\')
			}
			b = append(b, c)
		}
	}
	b = append(b, '$')
	// glob input is config-supplied, not attacker-controlled at request
	// time; a malformed pattern fails Build() validation upstream.
	return regexp.MustCompile(string(b))
}

func isRegexpMeta(c byte) bool {
	switch c {
	case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
		return true
	default:
		return false
	}
}
