package bibinject

// Order directive constants.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// UnknownGroupLabel is the label of the trailing group that collects entries
// lacking the group-by field. Entries without a sort year share the same
// placement rule: they always order last, regardless of direction.
const UnknownGroupLabel = "Unknown"

// Name is one personal name split into family and given components.
// The split is a fixed heuristic: "Family, Given" when a comma is present,
// otherwise the first token is the family name and the remainder the given
// name. Particles and suffixes are not treated specially.
type Name struct {
	Family string
	Given  string
}

// Entry is one normalized bibliographic record. Entries are created by
// Parse and treated as immutable afterwards; the formatter never mutates
// them, so a parsed slice may be shared between concurrent Format calls.
type Entry struct {
	// Key is the citation key, unique within a parsed document.
	Key string

	// Type is the lower-cased entry type tag (article, book, misc, ...).
	// Unrecognized types are retained verbatim.
	Type string

	// Fields maps lower-cased field names to normalized values.
	// Within one entry the last assignment of a repeated field wins.
	Fields map[string]string

	// Names holds the structured split of author-like fields (author,
	// editor), keyed by field name, in the order written.
	Names map[string][]Name

	// CrossRef is the key of another entry whose fields are inherited for
	// any field missing here. Resolved lazily at format time, so forward
	// references in file order are fine. Empty when absent.
	CrossRef string

	// Line is the 1-based input line where the entry began.
	Line int

	// Warnings holds parse-time field-level problems (a malformed field
	// stored raw, for example). Format-time warnings are reported on the
	// FormatResult instead.
	Warnings []FieldWarning
}

// Field returns the entry's own value for a lower-cased field name.
// Cross-referenced fields are not consulted; see Formatter resolution.
func (e *Entry) Field(name string) string {
	return e.Fields[name]
}

// RenderedReference pairs an entry with its rendered HTML fragment and the
// sort key that placed it.
type RenderedReference struct {
	Entry   *Entry
	HTML    string // a <li> fragment, safe to splice into a list
	SortKey string // the resolved value used for ordering, e.g. the year
}

// Group is a labeled partition of rendered references. The label is empty
// for the single ungrouped result.
type Group struct {
	Label      string
	References []RenderedReference
}

// FormatOptions carries the caller-supplied formatting directives.
type FormatOptions struct {
	// Order is OrderAsc or OrderDesc; any other value is an ErrInvalidOrder.
	Order string

	// GroupBy names a field to partition the sorted output by.
	// Empty means a single unlabeled group.
	GroupBy string
}

// FormatResult is the ordered, grouped output of the formatting stage.
type FormatResult struct {
	Groups   []Group
	Warnings []FieldWarning
}

// Input contains one full pipeline invocation's parameters.
type Input struct {
	BibTeX   string // BibTeX source text (required)
	Document string // target HTML document; empty for fragment-only mode
	AnchorID string // id of the element whose content is replaced
	Style    string // style name; empty selects DefaultStyle
	Order    string // OrderAsc or OrderDesc; empty selects OrderDesc
	GroupBy  string // optional grouping field
}

// Result is the outcome of a full pipeline invocation.
type Result struct {
	// Document is the injected document. Empty in fragment-only mode.
	Document string

	// Fragment is the generated reference list HTML.
	Fragment string

	// Groups is the ordered, grouped formatter output behind Fragment.
	Groups []Group

	// Warnings aggregates parse-time and format-time field warnings.
	Warnings []FieldWarning
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	stylePath string
}

// WithStylePath makes the service load style specifications from the given
// directory, falling back to the embedded styles for names not found there.
func WithStylePath(path string) Option {
	return func(s *Service) {
		s.cfg.stylePath = path
	}
}

// WithRegistry supplies a prebuilt style registry, bypassing asset loading.
// Useful for tests and for callers that construct styles programmatically.
func WithRegistry(r *StyleRegistry) Option {
	return func(s *Service) {
		s.registry = r
	}
}
