package bibinject

import "strings"

// SplitNames splits an author-like field value on the "and" conjunction into
// an ordered list of names. The conjunction is only recognized at brace
// depth zero, so corporate names like {Barnes and Noble} stay whole.
//
// Each name splits into family/given components with a fixed heuristic:
// "Family, Given" when a comma is present (extra comma segments, such as
// suffixes, join the given part); otherwise the first token is the family
// name and the remainder the given name. This is best-effort normalization,
// not internationalized name parsing.
func SplitNames(value string) []Name {
	var names []Name
	for _, chunk := range splitConjunction(value) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		names = append(names, parseName(chunk))
	}
	return names
}

// splitConjunction splits on the word "and" (any case) at brace depth zero.
func splitConjunction(s string) []string {
	var parts []string
	depth := 0
	start := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case 'a', 'A':
			if depth == 0 && isConjunctionAt(s, i) {
				parts = append(parts, s[start:i])
				i += 3
				start = i
				continue
			}
		}
		i++
	}
	parts = append(parts, s[start:])
	return parts
}

// isConjunctionAt reports whether s[i:] starts the standalone word "and",
// bounded by whitespace on both sides.
func isConjunctionAt(s string, i int) bool {
	if i == 0 || !isSpace(s[i-1]) {
		return false
	}
	if i+3 > len(s) || !strings.EqualFold(s[i:i+3], "and") {
		return false
	}
	return i+3 == len(s) || isSpace(s[i+3])
}

func parseName(chunk string) Name {
	if idx := topLevelComma(chunk); idx >= 0 {
		family := strings.TrimSpace(chunk[:idx])
		given := strings.TrimSpace(chunk[idx+1:])
		// "Family, Suffix, Given" folds the middle segments into the given
		// part, keeping the family component clean for sorting.
		given = strings.Join(strings.FieldsFunc(given, func(r rune) bool { return r == ',' }), " ")
		given = strings.Join(strings.Fields(given), " ")
		return Name{Family: stripOuterBraces(family), Given: stripOuterBraces(given)}
	}

	tokens := splitTokens(chunk)
	switch len(tokens) {
	case 0:
		return Name{}
	case 1:
		return Name{Family: stripOuterBraces(tokens[0])}
	default:
		return Name{
			Family: stripOuterBraces(tokens[0]),
			Given:  stripOuterBraces(strings.Join(tokens[1:], " ")),
		}
	}
}

// topLevelComma returns the index of the first comma at brace depth zero.
func topLevelComma(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTokens splits on whitespace at brace depth zero, so a braced
// multi-word component counts as one token.
func splitTokens(s string) []string {
	var tokens []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{':
			depth++
		case c == '}':
			if depth > 0 {
				depth--
			}
		case isSpace(c) && depth == 0:
			if start >= 0 {
				tokens = append(tokens, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

// stripOuterBraces removes one pair of enclosing braces when they wrap the
// whole string.
func stripOuterBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		depth := 0
		for i := 0; i < len(s)-1; i++ {
			switch s[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s // closes before the end, braces are interior
				}
			}
		}
		return s[1 : len(s)-1]
	}
	return s
}
