package bibinject

import (
	"fmt"
	"strings"
)

// Built-in month macros, expanded when a bare identifier appears in a value
// position. User @string definitions shadow these.
var monthMacros = map[string]string{
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"may": "May", "jun": "June", "jul": "July", "aug": "August",
	"sep": "September", "oct": "October", "nov": "November", "dec": "December",
}

// authorFields are split into structured name lists at parse time.
var authorFields = map[string]bool{"author": true, "editor": true}

// verbatimFields carry identifiers and paths where '~' and '--' are literal
// characters, not LaTeX ties and dashes. They skip normalization entirely.
var verbatimFields = map[string]bool{"url": true, "doi": true, "file": true}

// Parse tokenizes and parses BibTeX text into a sequence of entries.
//
// Text outside @entry{...} blocks is treated as commentary and skipped, as
// are @comment and @preamble blocks. @string macro definitions are recorded
// and expanded where a bare identifier appears in a value. Brace values may
// nest to arbitrary depth; quoted values end at the first unescaped quote at
// brace depth zero; adjacent segments joined by # are concatenated before
// normalization.
//
// Structural failures (unterminated value at end of input, duplicate key,
// missing key) return a *ParseError and abort the whole document. A field
// whose value cannot be scanned but where a following entry start exists
// degrades to storing the raw text for that field with a FieldWarning on the
// entry, and parsing resumes at the next entry.
func Parse(text string) ([]*Entry, error) {
	p := &parser{
		src:    text,
		macros: make(map[string]string),
	}
	return p.parse()
}

type parser struct {
	src    string
	pos    int
	macros map[string]string
}

func (p *parser) parse() ([]*Entry, error) {
	var entries []*Entry
	seen := make(map[string]bool)

	for {
		if !p.skipToEntry() {
			break
		}
		p.pos++ // consume '@'

		kind := strings.ToLower(p.scanIdent())
		switch kind {
		case "comment":
			p.skipBlock()
			continue
		case "preamble":
			p.skipBlock()
			continue
		case "string":
			if err := p.parseStringDef(); err != nil {
				return nil, err
			}
			continue
		}

		entry, err := p.parseEntry(kind)
		if err != nil {
			return nil, err
		}
		if seen[entry.Key] {
			return nil, p.errorAt(entry.Line, ErrDuplicateKey, fmt.Sprintf("key %q already defined", entry.Key))
		}
		seen[entry.Key] = true
		entries = append(entries, entry)
	}

	return entries, nil
}

// skipToEntry advances to the next '@' at the start of a line, the same
// anchor rule nextEntryStart uses for recovery. Everything else is
// commentary, inline '@' (an email address, say) included. Returns false at
// end of input.
func (p *parser) skipToEntry() bool {
	for p.pos < len(p.src) {
		if p.src[p.pos] == '@' && p.atLineStart(p.pos) {
			return true
		}
		p.pos++
	}
	return false
}

// skipBlock skips a balanced {...} or (...) block, or to end of line when no
// block follows. Used for @comment and @preamble, which are not stored.
func (p *parser) skipBlock() {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return
	}
	open := p.src[p.pos]
	if open != '{' && open != '(' {
		for p.pos < len(p.src) && p.src[p.pos] != '\n' {
			p.pos++
		}
		return
	}
	closeCh := byte('}')
	if open == '(' {
		closeCh = ')'
	}
	p.pos++
	depth := 1
	for p.pos < len(p.src) && depth > 0 {
		switch p.src[p.pos] {
		case '\\':
			p.pos++ // skip escaped character
		case open:
			depth++
		case closeCh:
			depth--
		}
		p.pos++
	}
}

// parseStringDef parses an @string{name = value, ...} macro definition.
func (p *parser) parseStringDef() error {
	start := p.pos
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '{' && p.src[p.pos] != '(') {
		return p.errorHere(ErrUnterminatedValue, "@string without a { or ( block")
	}
	closeCh := matchingClose(p.src[p.pos])
	p.pos++

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return p.errorAt(p.lineAt(start), ErrUnterminatedValue, "@string block not closed")
		}
		if p.src[p.pos] == closeCh {
			p.pos++
			return nil
		}
		name := strings.ToLower(p.scanIdent())
		if name == "" {
			return p.errorHere(ErrUnterminatedValue, "@string definition without a name")
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '=' {
			return p.errorHere(ErrUnterminatedValue, "@string definition without =")
		}
		p.pos++
		value, err := p.scanValue()
		if err != nil {
			return p.errorAt(p.lineAt(start), ErrUnterminatedValue, "unterminated @string value")
		}
		p.macros[name] = value
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
		}
	}
}

// parseEntry parses one @type{key, field = value, ...} entry. The type tag
// has already been consumed.
func (p *parser) parseEntry(entryType string) (*Entry, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '{' && p.src[p.pos] != '(') {
		return nil, p.errorHere(ErrMissingKey, fmt.Sprintf("@%s without a { or ( block", entryType))
	}
	closeCh := matchingClose(p.src[p.pos])
	entryStart := p.pos
	p.pos++

	entry := &Entry{
		Type:   entryType,
		Fields: make(map[string]string),
		Names:  make(map[string][]Name),
		Line:   p.lineAt(entryStart),
	}

	p.skipSpace()
	key := p.scanKey(closeCh)
	if key == "" {
		return nil, p.errorAt(entry.Line, ErrMissingKey, fmt.Sprintf("@%s entry has no key token", entryType))
	}
	entry.Key = key

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorAt(entry.Line, ErrUnterminatedValue, fmt.Sprintf("entry %q not closed", entry.Key))
		}
		if p.src[p.pos] == closeCh {
			p.pos++
			return entry, nil
		}
		if p.src[p.pos] != ',' {
			// A malformed brace value can swallow the entry's own closing
			// delimiter, leaving us staring at the next entry. Degrade with
			// a warning instead of losing the rest of the document.
			if p.src[p.pos] == '@' {
				entry.Warnings = append(entry.Warnings, FieldWarning{
					Key:    entry.Key,
					Reason: "entry not terminated before next entry",
				})
				return entry, nil
			}
			return nil, p.errorHere(ErrUnterminatedValue, fmt.Sprintf("expected , or %c in entry %q", closeCh, entry.Key))
		}
		p.pos++
		p.skipSpace()
		// Trailing comma before the closing delimiter is fine.
		if p.pos < len(p.src) && p.src[p.pos] == closeCh {
			p.pos++
			return entry, nil
		}

		field := strings.ToLower(p.scanIdent())
		if field == "" {
			return nil, p.errorHere(ErrUnterminatedValue, fmt.Sprintf("expected field name in entry %q", entry.Key))
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '=' {
			return nil, p.errorHere(ErrUnterminatedValue, fmt.Sprintf("field %q in entry %q without =", field, entry.Key))
		}
		p.pos++
		p.skipSpace()

		valueStart := p.pos
		value, err := p.scanValue()
		if err != nil {
			// Degrade to raw text when another entry follows; the bad field
			// must not lose the remaining entries. Unterminated at end of
			// input stays fatal.
			rawEnd := p.nextEntryStart(valueStart)
			if rawEnd < 0 {
				return nil, p.errorAt(p.lineAt(valueStart), ErrUnterminatedValue,
					fmt.Sprintf("field %q in entry %q", field, entry.Key))
			}
			raw := strings.TrimSpace(p.src[valueStart:rawEnd])
			p.setField(entry, field, raw)
			entry.Warnings = append(entry.Warnings, FieldWarning{
				Key:    entry.Key,
				Field:  field,
				Reason: "unterminated value, stored raw",
			})
			p.pos = rawEnd
			return entry, nil
		}
		p.setField(entry, field, normalizeValue(field, value))
	}
}

// setField assigns a field, lifting crossref onto the entry and splitting
// author-like fields into structured names. Last assignment wins.
func (p *parser) setField(entry *Entry, field, value string) {
	if field == "crossref" {
		entry.CrossRef = value
		return
	}
	entry.Fields[field] = value
	if authorFields[field] {
		entry.Names[field] = SplitNames(value)
	}
}

// scanValue scans one logical value: a sequence of components joined by #.
// Components are braced groups, quoted strings, numbers, or macro names.
func (p *parser) scanValue() (string, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return "", fmt.Errorf("%w: value missing", ErrUnterminatedValue)
		}
		switch c := p.src[p.pos]; {
		case c == '{':
			inner, err := p.scanBraced()
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		case c == '"':
			inner, err := p.scanQuoted()
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		case c >= '0' && c <= '9':
			b.WriteString(p.scanNumber())
		case isIdentStart(c):
			name := strings.ToLower(p.scanIdent())
			if v, ok := p.macros[name]; ok {
				b.WriteString(v)
			} else if v, ok := monthMacros[name]; ok {
				b.WriteString(v)
			} else {
				// Undefined macro: keep the identifier verbatim.
				b.WriteString(name)
			}
		default:
			return "", fmt.Errorf("%w: unexpected %q in value", ErrUnterminatedValue, c)
		}

		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '#' {
			p.pos++
			continue
		}
		return b.String(), nil
	}
}

// scanBraced scans a {...} group with arbitrary nesting depth and returns
// the inner text with the outermost braces stripped. Inner balanced braces
// are preserved. Backslash-escaped braces do not affect the depth.
//
// An '@' at the start of a line terminates the scan with an error: it means
// an unterminated value is about to swallow the next entry, and recovery
// must resume there instead.
func (p *parser) scanBraced() (string, error) {
	p.pos++ // consume '{'
	start := p.pos
	depth := 1
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos++ // escaped character, depth unchanged
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				inner := p.src[start:p.pos]
				p.pos++
				return inner, nil
			}
		case '@':
			if p.atLineStart(p.pos) {
				return "", fmt.Errorf("%w: brace group not closed before next entry", ErrUnterminatedValue)
			}
		}
		p.pos++
	}
	return "", fmt.Errorf("%w: brace group not closed", ErrUnterminatedValue)
}

// scanQuoted scans a "..." value. The closing quote must be unescaped and at
// brace depth zero, so "a \"quoted\" {"} inside" style values work.
func (p *parser) scanQuoted() (string, error) {
	p.pos++ // consume '"'
	start := p.pos
	depth := 0
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos++
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '"':
			if depth == 0 {
				inner := p.src[start:p.pos]
				p.pos++
				return inner, nil
			}
		case '@':
			if p.atLineStart(p.pos) {
				return "", fmt.Errorf("%w: quoted value not closed before next entry", ErrUnterminatedValue)
			}
		}
		p.pos++
	}
	return "", fmt.Errorf("%w: quoted value not closed", ErrUnterminatedValue)
}

// atLineStart reports whether only blanks precede offset i on its line.
func (p *parser) atLineStart(i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch p.src[j] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func (p *parser) scanNumber() string {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	return p.src[start:p.pos]
}

// scanIdent scans an identifier (type tags, field names, macro names).
func (p *parser) scanIdent() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// scanKey scans a citation key: everything up to the first comma, closing
// delimiter, or whitespace. Keys keep their case.
func (p *parser) scanKey(closeCh byte) string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == closeCh || isSpace(c) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// nextEntryStart returns the offset of the next '@' at the start of a line
// after from, or -1. Used as the recovery point for malformed field values.
func (p *parser) nextEntryStart(from int) int {
	for i := from; i < len(p.src); i++ {
		if p.src[i] != '@' {
			continue
		}
		j := i - 1
		for j >= 0 && (p.src[j] == ' ' || p.src[j] == '\t') {
			j--
		}
		if j < 0 || p.src[j] == '\n' {
			return i
		}
	}
	return -1
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

// lineAt returns the 1-based line number of a byte offset.
func (p *parser) lineAt(off int) int {
	if off > len(p.src) {
		off = len(p.src)
	}
	return 1 + strings.Count(p.src[:off], "\n")
}

func (p *parser) errorHere(sentinel error, reason string) *ParseError {
	return &ParseError{Line: p.lineAt(p.pos), Offset: p.pos, Reason: reason, Err: sentinel}
}

func (p *parser) errorAt(line int, sentinel error, reason string) *ParseError {
	return &ParseError{Line: line, Offset: p.pos, Reason: reason, Err: sentinel}
}

func matchingClose(open byte) byte {
	if open == '(' {
		return ')'
	}
	return '}'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-' || c == ':' || c == '.'
}

// normalizeValue applies LaTeX normalization and whitespace cleanup to a
// scanned value. Runs of spaces and tabs collapse to one space; newlines are
// kept so Markdown-bearing fields (abstract, note) survive intact.
// Verbatim fields (url, doi, file) are only trimmed: a '~' in a URL path is
// part of the URL.
func normalizeValue(field, s string) string {
	if verbatimFields[field] {
		return strings.TrimSpace(s)
	}
	s = NormalizeLaTeX(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			space = true
			continue
		}
		if space {
			if b.Len() > 0 && !endsWithNewline(&b) && r != '\n' {
				b.WriteByte(' ')
			}
			space = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func endsWithNewline(b *strings.Builder) bool {
	s := b.String()
	return len(s) > 0 && s[len(s)-1] == '\n'
}
