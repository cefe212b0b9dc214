package selector

import "strings"

// splitTopLevel splits s on sep, ignoring separators inside brackets,
// parentheses and quoted strings.
func splitTopLevel(s string, sep rune) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, string(runes[start:i]))
			start = i + 1
		}
	}

	if last := string(runes[start:]); strings.TrimSpace(last) != "" || len(parts) > 0 {
		parts = append(parts, last)
	}

	return parts
}

// splitAttr separates a trailing "@attribute" from a selector. Only the last
// '@' outside brackets and quotes counts, and only when what follows is a
// valid attribute name.
func splitAttr(part string) (css, attr string) {
	var (
		depth int
		quote rune
		at    = -1
	)

	for i, c := range part {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
		case c == '@' && depth == 0:
			at = i
		}
	}

	if at < 0 {
		return strings.TrimSpace(part), ""
	}

	name := strings.TrimSpace(part[at+1:])
	if !attrName.MatchString(name) {
		return strings.TrimSpace(part), ""
	}

	return strings.TrimSpace(part[:at]), name
}
