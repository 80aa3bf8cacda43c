package bibinject

import "strings"

// accentTable maps a LaTeX accent command character and its base letter to
// the precomposed rune. Covers the diacritics that actually occur in
// bibliographies; anything else falls back to the bare letter.
var accentTable = map[byte]map[rune]rune{
	'\'': { // acute
		'a': 'á', 'e': 'é', 'i': 'í', 'o': 'ó', 'u': 'ú', 'y': 'ý', 'c': 'ć', 'n': 'ń', 's': 'ś', 'z': 'ź',
		'A': 'Á', 'E': 'É', 'I': 'Í', 'O': 'Ó', 'U': 'Ú', 'Y': 'Ý', 'C': 'Ć', 'N': 'Ń', 'S': 'Ś', 'Z': 'Ź',
	},
	'`': { // grave
		'a': 'à', 'e': 'è', 'i': 'ì', 'o': 'ò', 'u': 'ù',
		'A': 'À', 'E': 'È', 'I': 'Ì', 'O': 'Ò', 'U': 'Ù',
	},
	'"': { // umlaut
		'a': 'ä', 'e': 'ë', 'i': 'ï', 'o': 'ö', 'u': 'ü', 'y': 'ÿ',
		'A': 'Ä', 'E': 'Ë', 'I': 'Ï', 'O': 'Ö', 'U': 'Ü',
	},
	'^': { // circumflex
		'a': 'â', 'e': 'ê', 'i': 'î', 'o': 'ô', 'u': 'û',
		'A': 'Â', 'E': 'Ê', 'I': 'Î', 'O': 'Ô', 'U': 'Û',
	},
	'~': { // tilde
		'a': 'ã', 'n': 'ñ', 'o': 'õ',
		'A': 'Ã', 'N': 'Ñ', 'O': 'Õ',
	},
	'=': { // macron
		'a': 'ā', 'e': 'ē', 'i': 'ī', 'o': 'ō', 'u': 'ū',
		'A': 'Ā', 'E': 'Ē', 'I': 'Ī', 'O': 'Ō', 'U': 'Ū',
	},
}

// letterCommands maps argumentless LaTeX letter commands to their display
// text.
var letterCommands = map[string]string{
	"ss": "ß", "ae": "æ", "AE": "Æ", "oe": "œ", "OE": "Œ",
	"o": "ø", "O": "Ø", "aa": "å", "AA": "Å", "l": "ł", "L": "Ł",
	"i": "ı", "j": "ȷ",
}

// cedillaCommands maps \c and \v style commands to per-letter results.
var cedillaCommands = map[string]map[rune]rune{
	"c": {'c': 'ç', 'C': 'Ç', 's': 'ş', 'S': 'Ş', 't': 'ţ', 'T': 'Ţ'},
	"v": {'c': 'č', 'C': 'Č', 's': 'š', 'S': 'Š', 'z': 'ž', 'Z': 'Ž', 'r': 'ř', 'R': 'Ř'},
}

// NormalizeLaTeX collapses backslash-escaped characters and accent or markup
// macros in a field value to their plain-text or display equivalents.
// Diacritic commands become the accented rune, hyphenation and spacing hints
// are stripped, and unknown commands lose the command while keeping their
// argument text. Balanced braces that are not command arguments are
// preserved verbatim. This runs once, at parse time; formatting never sees
// raw escapes.
func NormalizeLaTeX(s string) string {
	if !strings.ContainsAny(s, "\\~-") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			i = normalizeCommand(runes, i, &b)
		case '~':
			b.WriteByte(' ') // tie renders as a plain space
		case '-':
			// --- and -- are em and en dashes; a single hyphen stays.
			if i+2 < len(runes) && runes[i+1] == '-' && runes[i+2] == '-' {
				b.WriteRune('—')
				i += 2
			} else if i+1 < len(runes) && runes[i+1] == '-' {
				b.WriteRune('–')
				i++
			} else {
				b.WriteRune('-')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeCommand handles one backslash command starting at runes[i] and
// returns the index of the last rune consumed.
func normalizeCommand(runes []rune, i int, b *strings.Builder) int {
	if i+1 >= len(runes) {
		return i // trailing backslash, dropped
	}
	next := runes[i+1]

	// Escaped specials keep their literal character.
	switch next {
	case '&', '%', '$', '#', '_', '{', '}':
		b.WriteRune(next)
		return i + 1
	case '\\': // line break hint
		b.WriteByte(' ')
		return i + 1
	case '-': // hyphenation hint, stripped
		return i + 1
	case ',', ' ': // thin space, control space
		b.WriteByte(' ')
		return i + 1
	}

	// Single-character accent commands: \'e or \'{e}.
	if table, ok := accentTable[byte(next)]; ok && next < 0x80 {
		letter, end, found := accentArgument(runes, i+2)
		if found {
			if combined, ok := table[letter]; ok {
				b.WriteRune(combined)
			} else {
				b.WriteRune(letter)
			}
			return end
		}
		return i + 1
	}

	if !isLetterRune(next) {
		// Unknown symbol command, dropped.
		return i + 1
	}

	// Named command: read the letters.
	j := i + 1
	for j < len(runes) && isLetterRune(runes[j]) {
		j++
	}
	name := string(runes[i+1 : j])

	if repl, ok := letterCommands[name]; ok {
		b.WriteString(repl)
		// The space that ends a control word is part of the command.
		if j < len(runes) && runes[j] == ' ' {
			return j
		}
		return j - 1
	}
	if table, ok := cedillaCommands[name]; ok {
		letter, end, found := accentArgument(runes, j)
		if found {
			if combined, ok := table[letter]; ok {
				b.WriteRune(combined)
			} else {
				b.WriteRune(letter)
			}
			return end
		}
		return j - 1
	}

	// Unknown command: strip the command name, keep any braced argument
	// text by leaving it for the main loop.
	return j - 1
}

// accentArgument extracts the single-letter argument of an accent command at
// position i: either a bare letter or a {letter} group. Returns the letter,
// the index of the last rune consumed, and whether an argument was found.
func accentArgument(runes []rune, i int) (rune, int, bool) {
	// Skip an optional space between command and argument, as in \c c.
	if i < len(runes) && runes[i] == ' ' {
		i++
	}
	if i < len(runes) && isLetterRune(runes[i]) {
		return runes[i], i, true
	}
	if i+2 < len(runes) && runes[i] == '{' && isLetterRune(runes[i+1]) && runes[i+2] == '}' {
		return runes[i+1], i + 2, true
	}
	return 0, i, false
}

func isLetterRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
