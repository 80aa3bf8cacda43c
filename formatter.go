package bibinject

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// crossRefDepthLimit bounds cross-reference chains so cyclic references
// terminate. Exceeding the bound leaves the field empty with a warning.
const crossRefDepthLimit = 8

// yearPattern extracts the first four-digit run from a year field, so
// values like "circa 2019" still sort.
var yearPattern = regexp.MustCompile(`\d{4}`)

// Cleanup patterns for the post-substitution tidy pass. Omitted conditional
// segments can leave empty parentheses and doubled punctuation behind.
var (
	emptyParens     = regexp.MustCompile(`\(\s*\)`)
	spaceBeforeSep  = regexp.MustCompile(`[ \t]+([,.])`)
	doubledComma    = regexp.MustCompile(`,(\s*,)+`)
	commaThenPeriod = regexp.MustCompile(`,\s*\.`)
	doubledPeriod   = regexp.MustCompile(`\.(\s*\.)+`)
	multiSpace      = regexp.MustCompile(`[ \t]{2,}`)
)

// Formatter turns parsed entries into ordered, grouped, rendered reference
// lists according to a style from its registry. A Formatter is stateless
// across calls and safe for concurrent use.
type Formatter struct {
	registry *StyleRegistry
	md       goldmark.Markdown
}

// NewFormatter creates a Formatter over an explicit style registry.
func NewFormatter(registry *StyleRegistry) *Formatter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
	)
	return &Formatter{registry: registry, md: md}
}

// Format renders entries with the named style and the given directives and
// returns the ordered groups. Unknown style names, invalid order values,
// and entry types with no usable template are *FormatError failures for the
// whole run; field-level problems accumulate as warnings on the result and
// never block other entries.
//
// Output order is total and deterministic: primary key is the resolved
// numeric year honoring opts.Order, ties break by first-author family name
// case-insensitively, then by citation key. Entries without a resolvable
// year order last. With opts.GroupBy the sorted sequence is partitioned
// into contiguous groups by that field's resolved value; entries lacking
// the field collect into a trailing "Unknown" group.
func (f *Formatter) Format(entries []*Entry, styleName string, opts FormatOptions) (*FormatResult, error) {
	style, err := f.registry.Lookup(styleName)
	if err != nil {
		return nil, &FormatError{Style: styleName, Reason: "style lookup", Err: ErrUnknownStyle}
	}

	order := opts.Order
	if order == "" {
		order = OrderDesc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, &FormatError{
			Style:  styleName,
			Reason: fmt.Sprintf("order must be %q or %q, got %q", OrderAsc, OrderDesc, opts.Order),
			Err:    ErrInvalidOrder,
		}
	}

	run := &formatRun{
		formatter: f,
		style:     style,
		index:     make(map[string]*Entry, len(entries)),
	}
	for _, e := range entries {
		run.index[e.Key] = e
		run.warnings = append(run.warnings, e.Warnings...)
	}

	rendered := make([]RenderedReference, 0, len(entries))
	for _, e := range entries {
		htmlText, err := run.renderEntry(e)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, RenderedReference{
			Entry:   e,
			HTML:    htmlText,
			SortKey: run.resolve(e, "year"),
		})
	}

	run.sortReferences(rendered, order, opts.GroupBy)

	groups := run.groupReferences(rendered, opts.GroupBy)
	return &FormatResult{Groups: groups, Warnings: run.warnings}, nil
}

// formatRun carries the per-invocation state: the entry index for
// cross-reference resolution, the accumulated warnings, and the rendered
// markdown parts of the entry currently being rendered.
type formatRun struct {
	formatter *Formatter
	style     *Style
	index     map[string]*Entry
	warnings  []FieldWarning
	mdParts   []string
}

func (r *formatRun) warn(key, field, reason string) {
	r.warnings = append(r.warnings, FieldWarning{Key: key, Field: field, Reason: reason})
}

// resolve returns an entry's field value, following cross-references for
// missing fields up to the depth bound. A missing target or an exhausted
// bound yields the empty string plus a recorded warning.
func (r *formatRun) resolve(e *Entry, field string) string {
	cur := e
	for depth := 0; depth <= crossRefDepthLimit; depth++ {
		if v, ok := cur.Fields[field]; ok && v != "" {
			return v
		}
		if cur.CrossRef == "" {
			return ""
		}
		next, ok := r.index[cur.CrossRef]
		if !ok {
			r.warn(cur.Key, field, fmt.Sprintf("cross-reference target %q not found", cur.CrossRef))
			return ""
		}
		cur = next
	}
	r.warn(e.Key, field, "cross-reference depth bound exceeded")
	return ""
}

// resolveNames is the structured-name analogue of resolve.
func (r *formatRun) resolveNames(e *Entry, field string) []Name {
	cur := e
	for depth := 0; depth <= crossRefDepthLimit; depth++ {
		if names := cur.Names[field]; len(names) > 0 {
			return names
		}
		if cur.CrossRef == "" {
			return nil
		}
		next, ok := r.index[cur.CrossRef]
		if !ok {
			return nil // resolve already warned for the string form
		}
		cur = next
	}
	return nil
}

// renderEntry renders one entry as a <li> fragment.
func (r *formatRun) renderEntry(e *Entry) (string, error) {
	tmpl, ok := r.style.Template(e.Type)
	if !ok {
		return "", &FormatError{
			Style:  r.style.Name,
			Reason: fmt.Sprintf("entry %q has type %q and the style has no generic template", e.Key, e.Type),
			Err:    ErrNoTemplate,
		}
	}

	r.mdParts = r.mdParts[:0]
	body, _, err := r.renderSegment(tmpl, e)
	if err != nil {
		return "", err
	}
	// Markdown output sits behind placeholders while tidy runs: the
	// whitespace inside pre and code spans is significant.
	body = tidy(body)
	body = r.restoreMarkdown(body)
	return fmt.Sprintf(`<li class="ref ref-%s" id="ref-%s">%s</li>`,
		html.EscapeString(e.Type), html.EscapeString(e.Key), body), nil
}

// renderSegment renders template text for an entry. The second return
// reports whether the segment should be kept: a segment is dropped when any
// of its direct placeholders resolves empty. Nested [[ ... ]] conditionals
// are rendered recursively and do not count as direct placeholders.
func (r *formatRun) renderSegment(tmpl string, e *Entry) (string, bool, error) {
	var b strings.Builder
	keep := true
	i := 0
	for i < len(tmpl) {
		if strings.HasPrefix(tmpl[i:], "[[") {
			end, ok := matchConditional(tmpl, i)
			if !ok {
				return "", false, &FormatError{
					Style:  r.style.Name,
					Reason: "unbalanced [[ in template",
					Err:    ErrNoTemplate,
				}
			}
			inner, innerKeep, err := r.renderSegment(tmpl[i+2:end], e)
			if err != nil {
				return "", false, err
			}
			if innerKeep {
				b.WriteString(inner)
			}
			i = end + 2
			continue
		}
		if strings.HasPrefix(tmpl[i:], "{{") {
			rel := strings.Index(tmpl[i:], "}}")
			if rel < 0 {
				return "", false, &FormatError{
					Style:  r.style.Name,
					Reason: "unbalanced {{ in template",
					Err:    ErrNoTemplate,
				}
			}
			field := strings.TrimSpace(tmpl[i+2 : i+rel])
			value := r.substitute(e, field)
			if value == "" {
				keep = false
			}
			b.WriteString(value)
			i += rel + 2
			continue
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String(), keep, nil
}

// substitute resolves one placeholder to rendered, embedding-safe HTML.
func (r *formatRun) substitute(e *Entry, field string) string {
	field = strings.ToLower(field)

	if field == "doi_icon" {
		return html.EscapeString(r.style.DOIIcon)
	}

	if authorFields[field] {
		if names := r.resolveNames(e, field); len(names) > 0 {
			return r.formatNames(names)
		}
		// Fall through: a raw field value may exist without a name split
		// (e.g. inherited via crossref from the string form).
	}

	value := r.resolve(e, field)
	if value == "" {
		return ""
	}
	if r.style.IsMarkdownField(field) {
		r.mdParts = append(r.mdParts, r.renderMarkdown(e, field, value))
		return mdPlaceholder(len(r.mdParts) - 1)
	}
	return html.EscapeString(value)
}

// mdPlaceholder is the stand-in substituted for a markdown field during the
// tidy pass. The NUL delimiters cannot occur in template or field text.
func mdPlaceholder(i int) string {
	return "\x00" + strconv.Itoa(i) + "\x00"
}

// restoreMarkdown swaps the rendered markdown parts back in after tidy.
func (r *formatRun) restoreMarkdown(body string) string {
	for i, part := range r.mdParts {
		body = strings.Replace(body, mdPlaceholder(i), part, 1)
	}
	return body
}

// formatNames renders a name list per the style's name options.
func (r *formatRun) formatNames(names []Name) string {
	truncated := false
	if r.style.EtAlAfter > 0 && len(names) > r.style.EtAlAfter {
		names = names[:1]
		truncated = true
	}

	sep := r.style.NameSeparator
	if sep == "" {
		sep = ", "
	}
	final := r.style.FinalSeparator
	if final == "" {
		final = " and "
	}

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = html.EscapeString(r.formatName(n))
	}

	var joined string
	switch {
	case len(parts) == 1:
		joined = parts[0]
	case truncated:
		joined = parts[0]
	default:
		joined = strings.Join(parts[:len(parts)-1], sep) + final + parts[len(parts)-1]
	}
	if truncated {
		joined += " et al."
	}
	return joined
}

func (r *formatRun) formatName(n Name) string {
	switch {
	case n.Given == "":
		return n.Family
	case r.style.NameOrder == "given-family":
		return n.Given + " " + n.Family
	default:
		return n.Family + ", " + n.Given
	}
}

// renderMarkdown converts a Markdown-bearing field to an HTML fragment.
// Conversion failures degrade to the escaped raw text with a warning.
func (r *formatRun) renderMarkdown(e *Entry, field, value string) string {
	var buf bytes.Buffer
	if err := r.formatter.md.Convert([]byte(value), &buf); err != nil {
		r.warn(e.Key, field, fmt.Sprintf("markdown rendering failed: %v", err))
		return html.EscapeString(value)
	}
	return strings.TrimSpace(buf.String())
}

// sortReferences orders references in place: resolved numeric year per the
// order directive, then first-author family name (case-insensitive), then
// citation key. Entries without a resolvable year always sort last.
//
// When grouping by month, calendar position becomes a secondary key after
// the year, so month groups read January through December within each year;
// entries without a recognizable month fall to the end of their year.
func (r *formatRun) sortReferences(refs []RenderedReference, order, groupBy string) {
	collator := collate.New(language.Und, collate.IgnoreCase)

	family := func(ref RenderedReference) string {
		if names := r.resolveNames(ref.Entry, "author"); len(names) > 0 {
			return names[0].Family
		}
		return ""
	}

	sort.SliceStable(refs, func(i, j int) bool {
		yi, iOK := numericYear(refs[i].SortKey)
		yj, jOK := numericYear(refs[j].SortKey)
		if iOK != jOK {
			return iOK // year-less entries last
		}
		if iOK && yi != yj {
			if order == OrderAsc {
				return yi < yj
			}
			return yi > yj
		}
		if groupBy == "month" {
			mi, miOK := monthIndex(r.resolve(refs[i].Entry, "month"))
			mj, mjOK := monthIndex(r.resolve(refs[j].Entry, "month"))
			if miOK != mjOK {
				return miOK
			}
			if miOK && mi != mj {
				return mi < mj
			}
		}
		if c := collator.CompareString(family(refs[i]), family(refs[j])); c != 0 {
			return c < 0
		}
		return refs[i].Entry.Key < refs[j].Entry.Key
	})
}

var monthAbbrevs = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// monthIndex returns the calendar position of a month value: a 1-12 number
// or a month name, full or abbreviated, case-insensitively.
func monthIndex(s string) (int, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return n, true
	}
	if len(s) >= 3 {
		if n, ok := monthAbbrevs[s[:3]]; ok {
			return n, true
		}
	}
	return 0, false
}

// numericYear extracts a sortable year from a resolved year value.
func numericYear(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if y, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return y, true
	}
	if m := yearPattern.FindString(s); m != "" {
		y, _ := strconv.Atoi(m)
		return y, true
	}
	return 0, false
}

// groupReferences partitions sorted references into contiguous groups by
// the resolved groupBy field. Grouping never re-shuffles the sort order.
func (r *formatRun) groupReferences(refs []RenderedReference, groupBy string) []Group {
	if groupBy == "" {
		return []Group{{References: refs}}
	}
	groupBy = strings.ToLower(groupBy)

	var groups []Group
	var unknown []RenderedReference
	for _, ref := range refs {
		label := r.groupLabel(ref.Entry, groupBy)
		if label == "" {
			r.warn(ref.Entry.Key, groupBy, "missing group field, placed in Unknown group")
			unknown = append(unknown, ref)
			continue
		}
		if len(groups) == 0 || groups[len(groups)-1].Label != label {
			groups = append(groups, Group{Label: label})
		}
		last := &groups[len(groups)-1]
		last.References = append(last.References, ref)
	}
	if len(unknown) > 0 {
		groups = append(groups, Group{Label: UnknownGroupLabel, References: unknown})
	}
	return groups
}

// groupLabel resolves the value an entry contributes to grouping. Author
// grouping uses the first author's family name rather than the whole list.
func (r *formatRun) groupLabel(e *Entry, field string) string {
	if authorFields[field] {
		if names := r.resolveNames(e, field); len(names) > 0 {
			return names[0].Family
		}
		return ""
	}
	return r.resolve(e, field)
}

// tidy cleans punctuation artifacts left by omitted conditional segments:
// empty parentheses, spaces before separators, and doubled punctuation.
// Newlines are preserved.
func tidy(s string) string {
	s = emptyParens.ReplaceAllString(s, "")
	s = spaceBeforeSep.ReplaceAllString(s, "$1")
	s = doubledComma.ReplaceAllString(s, ",")
	s = commaThenPeriod.ReplaceAllString(s, ".")
	s = doubledPeriod.ReplaceAllString(s, ".")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// matchConditional returns the index of the "]]" matching the "[[" at
// position i, tracking nesting.
func matchConditional(s string, i int) (int, bool) {
	depth := 0
	for j := i; j < len(s)-1; j++ {
		switch {
		case s[j] == '[' && s[j+1] == '[':
			depth++
			j++
		case s[j] == ']' && s[j+1] == ']':
			depth--
			if depth == 0 {
				return j, true
			}
			j++
		}
	}
	return 0, false
}

// Fragment renders formatted groups as the injectable HTML list: an
// optional <h2> heading per labeled group followed by a <ul> of reference
// items. Identical inputs produce byte-identical output.
func Fragment(groups []Group) string {
	var b strings.Builder
	for gi, g := range groups {
		if gi > 0 {
			b.WriteString("\n")
		}
		if g.Label != "" {
			b.WriteString("<h2>")
			b.WriteString(html.EscapeString(g.Label))
			b.WriteString("</h2>\n")
		}
		b.WriteString(`<ul class="references">`)
		b.WriteString("\n")
		for _, ref := range g.References {
			b.WriteString(ref.HTML)
			b.WriteString("\n")
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
