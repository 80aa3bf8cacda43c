package bibinject

import (
	"fmt"
	"sort"

	"github.com/alnah/go-bibinject/internal/assets"
	"github.com/alnah/go-bibinject/internal/yamlutil"
)

// DefaultStyle is the name of the built-in default reference style.
const DefaultStyle = "default"

// GenericTemplate is the template key used as the fallback for entry types
// without a type-specific template.
const GenericTemplate = "generic"

// Style is a named, declarative mapping from entry fields to rendering
// templates. Styles are immutable once loaded; a registry hands out shared
// pointers, so concurrent formatting runs may use the same Style.
//
// Template text is literal HTML with {{field}} placeholders and [[ ... ]]
// conditional segments. A conditional segment is omitted when any of its
// direct placeholders resolves empty; segments nest, so partially optional
// runs like [[{{volume}}[[({{number}})]]]] degrade gracefully.
type Style struct {
	// Name identifies the style and must match its asset name.
	Name string `yaml:"name"`

	// Templates maps entry types to template text. The "generic" key is
	// the fallback for types without their own template.
	Templates map[string]string `yaml:"templates"`

	// DOIIcon is the image URL substituted for the {{doi_icon}}
	// pseudo-field. Empty omits icon segments.
	DOIIcon string `yaml:"doiIcon"`

	// MarkdownFields lists fields rendered as Markdown instead of being
	// HTML-escaped (e.g. abstract in an annotated bibliography).
	MarkdownFields []string `yaml:"markdownFields"`

	// NameOrder is "family-given" (Family, Given) or "given-family"
	// (Given Family) for the rendered name list. Defaults to family-given.
	NameOrder string `yaml:"nameOrder"`

	// NameSeparator joins names in a list; defaults to ", ".
	NameSeparator string `yaml:"nameSeparator"`

	// FinalSeparator joins the last two names; defaults to " and ".
	FinalSeparator string `yaml:"finalSeparator"`

	// EtAlAfter truncates name lists longer than this to the first name
	// plus "et al." Zero means never truncate.
	EtAlAfter int `yaml:"etAlAfter"`
}

// Template returns the template for an entry type, falling back to the
// generic template. The second return is false when neither exists.
func (s *Style) Template(entryType string) (string, bool) {
	if t, ok := s.Templates[entryType]; ok {
		return t, true
	}
	t, ok := s.Templates[GenericTemplate]
	return t, ok
}

// IsMarkdownField reports whether a field renders as Markdown in this style.
func (s *Style) IsMarkdownField(field string) bool {
	for _, f := range s.MarkdownFields {
		if f == field {
			return true
		}
	}
	return false
}

// StyleRegistry is an explicit, immutable mapping from style names to loaded
// style definitions, built once at startup and passed into the formatter.
// Lookup is read-only, so a registry is safe for concurrent use.
type StyleRegistry struct {
	styles map[string]*Style
}

// NewStyleRegistry builds a registry from the embedded style assets, with
// stylePath (optional, may be empty) as a directory of custom styles that
// take precedence by name.
func NewStyleRegistry(stylePath string) (*StyleRegistry, error) {
	resolver, err := assets.NewStyleResolver(stylePath)
	if err != nil {
		return nil, fmt.Errorf("building style registry: %w", err)
	}

	names, err := resolver.Names()
	if err != nil {
		return nil, fmt.Errorf("listing styles: %w", err)
	}

	registry := &StyleRegistry{styles: make(map[string]*Style, len(names))}
	for _, name := range names {
		data, err := resolver.LoadStyle(name)
		if err != nil {
			return nil, fmt.Errorf("loading style %q: %w", name, err)
		}
		style, err := parseStyle(name, data)
		if err != nil {
			return nil, err
		}
		registry.styles[name] = style
	}
	return registry, nil
}

// NewStyleRegistryFromStyles builds a registry from styles constructed in
// code, bypassing asset loading. Styles must carry non-empty names.
func NewStyleRegistryFromStyles(styles ...*Style) (*StyleRegistry, error) {
	registry := &StyleRegistry{styles: make(map[string]*Style, len(styles))}
	for _, style := range styles {
		if err := validateStyle(style); err != nil {
			return nil, err
		}
		registry.styles[style.Name] = style
	}
	return registry, nil
}

// Lookup returns the style for a name. Unknown names are a configuration
// error: the returned error wraps ErrUnknownStyle and never silently
// defaults.
func (r *StyleRegistry) Lookup(name string) (*Style, error) {
	style, ok := r.styles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	return style, nil
}

// Names lists the available style names, sorted, for CLI help text and the
// web form dropdown.
func (r *StyleRegistry) Names() []string {
	names := make([]string, 0, len(r.styles))
	for name := range r.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseStyle(name string, data []byte) (*Style, error) {
	var style Style
	if err := yamlutil.UnmarshalStrict(data, &style); err != nil {
		return nil, fmt.Errorf("parsing style %q: %w", name, err)
	}
	if style.Name == "" {
		style.Name = name
	}
	if style.Name != name {
		return nil, fmt.Errorf("style %q declares mismatched name %q", name, style.Name)
	}
	if err := validateStyle(&style); err != nil {
		return nil, err
	}
	return &style, nil
}

func validateStyle(style *Style) error {
	if style == nil || style.Name == "" {
		return fmt.Errorf("%w: style without a name", ErrUnknownStyle)
	}
	if len(style.Templates) == 0 {
		return fmt.Errorf("style %q defines no templates", style.Name)
	}
	switch style.NameOrder {
	case "", "family-given", "given-family":
	default:
		return fmt.Errorf("style %q: unknown nameOrder %q", style.Name, style.NameOrder)
	}
	return nil
}
