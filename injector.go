package bibinject

import "strings"

// voidElements have no closing tag and therefore no inner span.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// rawTextElements swallow markup until their literal closing tag.
var rawTextElements = map[string]bool{"script": true, "style": true}

// Inject locates the unique element whose id attribute equals anchorID and
// returns the document with that element's inner content replaced by
// fragment. Every byte outside the replaced span is preserved, which makes
// the operation idempotent: injecting the same fragment twice yields the
// same document as injecting it once.
//
// The scan is tag-aware rather than regex-based: comments, raw text inside
// <script>/<style>, and quoted attribute values are skipped, and the
// matching closing tag is found by tracking the nesting depth of
// identically named elements. Failures return an *InjectionError wrapping
// ErrAnchorNotFound (no such id), ErrAnchorAmbiguous (id appears on more
// than one element), or ErrNoInnerSpan (self-closing or void anchor, or no
// matching closing tag).
func Inject(document, anchorID, fragment string) (string, error) {
	if anchorID == "" {
		return "", &InjectionError{AnchorID: anchorID, Err: ErrAnchorNotFound}
	}

	tags := scanTags(document)

	anchorAt := -1
	for i, tag := range tags {
		if !tag.closing && tag.id == anchorID {
			if anchorAt >= 0 {
				return "", &InjectionError{AnchorID: anchorID, Err: ErrAnchorAmbiguous}
			}
			anchorAt = i
		}
	}
	if anchorAt < 0 {
		return "", &InjectionError{AnchorID: anchorID, Err: ErrAnchorNotFound}
	}

	anchor := tags[anchorAt]
	if anchor.selfClosing || voidElements[anchor.name] {
		return "", &InjectionError{AnchorID: anchorID, Err: ErrNoInnerSpan}
	}

	// Find the matching close: same tag name, tracking nesting so an inner
	// element of the same name doesn't end the span early.
	depth := 1
	for _, tag := range tags[anchorAt+1:] {
		if tag.name != anchor.name {
			continue
		}
		if tag.closing {
			depth--
			if depth == 0 {
				return document[:anchor.end] + fragment + document[tag.start:], nil
			}
		} else if !tag.selfClosing {
			depth++
		}
	}
	return "", &InjectionError{AnchorID: anchorID, Err: ErrNoInnerSpan}
}

// tagToken is one scanned tag: its byte span, lower-cased name, id
// attribute (open tags only), and whether it closes or self-closes.
type tagToken struct {
	start, end  int // [start, end) spans "<" through ">"
	name        string
	id          string
	closing     bool
	selfClosing bool
}

// scanTags tokenizes every tag in the document, skipping comments,
// doctypes, CDATA sections, and the raw text content of script and style
// elements.
func scanTags(doc string) []tagToken {
	var tags []tagToken
	i := 0
	for i < len(doc) {
		if doc[i] != '<' {
			i++
			continue
		}
		switch {
		case strings.HasPrefix(doc[i:], "<!--"):
			i = skipPast(doc, i+4, "-->")
			continue
		case strings.HasPrefix(doc[i:], "<![CDATA["):
			i = skipPast(doc, i+9, "]]>")
			continue
		case strings.HasPrefix(doc[i:], "<!"), strings.HasPrefix(doc[i:], "<?"):
			i = skipPast(doc, i+2, ">")
			continue
		}

		tag, next, ok := scanTag(doc, i)
		if !ok {
			i++
			continue
		}
		tags = append(tags, tag)
		i = next

		// Raw text elements: jump straight to the literal closing tag so
		// "<div>" inside a script string is not taken for markup.
		if !tag.closing && !tag.selfClosing && rawTextElements[tag.name] {
			i = skipToRawClose(doc, i, tag.name)
		}
	}
	return tags
}

// scanTag parses one tag starting at the '<' at offset i. Returns the
// token, the offset just past the closing '>', and whether a tag was
// actually present (a bare '<' in text is not).
func scanTag(doc string, i int) (tagToken, int, bool) {
	tag := tagToken{start: i}
	j := i + 1
	if j < len(doc) && doc[j] == '/' {
		tag.closing = true
		j++
	}

	nameStart := j
	for j < len(doc) && isTagNameChar(doc[j]) {
		j++
	}
	if j == nameStart {
		return tagToken{}, 0, false
	}
	tag.name = strings.ToLower(doc[nameStart:j])

	// Scan attributes up to the closing '>', honoring quoted values.
	for j < len(doc) {
		c := doc[j]
		switch {
		case c == '>':
			tag.end = j + 1
			return tag, j + 1, true
		case c == '/' && j+1 < len(doc) && doc[j+1] == '>':
			tag.selfClosing = true
			tag.end = j + 2
			return tag, j + 2, true
		case c == '"' || c == '\'':
			j = skipQuoted(doc, j)
		case isTagNameChar(c) && !tag.closing:
			var name, value string
			name, value, j = scanAttribute(doc, j)
			if strings.EqualFold(name, "id") {
				tag.id = value
			}
		default:
			j++
		}
	}
	return tagToken{}, 0, false // unterminated tag at end of input
}

// scanAttribute parses one name[=value] attribute starting at offset j.
func scanAttribute(doc string, j int) (name, value string, next int) {
	nameStart := j
	for j < len(doc) && isAttrNameChar(doc[j]) {
		j++
	}
	name = doc[nameStart:j]

	// Optional whitespace around '='.
	k := j
	for k < len(doc) && isSpace(doc[k]) {
		k++
	}
	if k >= len(doc) || doc[k] != '=' {
		return name, "", j // boolean attribute
	}
	k++
	for k < len(doc) && isSpace(doc[k]) {
		k++
	}
	if k >= len(doc) {
		return name, "", k
	}

	if q := doc[k]; q == '"' || q == '\'' {
		valueStart := k + 1
		end := strings.IndexByte(doc[valueStart:], q)
		if end < 0 {
			return name, doc[valueStart:], len(doc)
		}
		return name, doc[valueStart : valueStart+end], valueStart + end + 1
	}

	valueStart := k
	for k < len(doc) && !isSpace(doc[k]) && doc[k] != '>' && doc[k] != '/' {
		k++
	}
	return name, doc[valueStart:k], k
}

// skipQuoted advances past a quoted attribute value starting at the quote.
func skipQuoted(doc string, j int) int {
	q := doc[j]
	end := strings.IndexByte(doc[j+1:], q)
	if end < 0 {
		return len(doc)
	}
	return j + 1 + end + 1
}

// skipPast returns the offset just past the next occurrence of marker, or
// the end of the document.
func skipPast(doc string, from int, marker string) int {
	idx := strings.Index(doc[from:], marker)
	if idx < 0 {
		return len(doc)
	}
	return from + idx + len(marker)
}

// skipToRawClose advances to the "</script" or "</style" closing a raw text
// element, case-insensitively. The close tag itself is left for scanTags.
func skipToRawClose(doc string, from int, name string) int {
	for i := from; i+2+len(name) <= len(doc); i++ {
		if doc[i] != '<' || doc[i+1] != '/' {
			continue
		}
		if strings.EqualFold(doc[i+2:i+2+len(name)], name) {
			return i
		}
	}
	return len(doc)
}

func isTagNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '-' || c == ':'
}

func isAttrNameChar(c byte) bool {
	return isTagNameChar(c) || c == '_' || c == '.'
}
