package assets

import "errors"

// StyleResolver combines custom and embedded loaders with fallback logic.
// When a custom directory is configured it is tried first, falling back to
// the embedded styles when the name is not found there.
type StyleResolver struct {
	custom   StyleLoader // nil if no custom path configured
	embedded StyleLoader
}

// NewStyleResolver creates a StyleResolver. If customBasePath is empty only
// embedded styles are used. Returns error if customBasePath is set but
// invalid.
func NewStyleResolver(customBasePath string) (*StyleResolver, error) {
	resolver := &StyleResolver{
		embedded: NewEmbeddedLoader(),
	}

	if customBasePath != "" {
		fsLoader, err := NewFilesystemLoader(customBasePath)
		if err != nil {
			return nil, err
		}
		resolver.custom = fsLoader
	}

	return resolver, nil
}

// LoadStyle loads a style, trying the custom loader first if available.
func (r *StyleResolver) LoadStyle(name string) ([]byte, error) {
	if r.custom == nil {
		return r.embedded.LoadStyle(name)
	}

	content, err := r.custom.LoadStyle(name)
	if err == nil {
		return content, nil
	}

	// Only fall back for "not found", not validation or I/O errors.
	if !errors.Is(err, ErrStyleNotFound) {
		return nil, err
	}

	return r.embedded.LoadStyle(name)
}

// Names returns the union of custom and embedded style names, unsorted and
// deduplicated.
func (r *StyleResolver) Names() ([]string, error) {
	names, err := r.embedded.Names()
	if err != nil {
		return nil, err
	}
	if r.custom == nil {
		return names, nil
	}

	customNames, err := r.custom.Names()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range customNames {
		if !seen[n] {
			names = append(names, n)
		}
	}
	return names, nil
}

// HasCustomLoader returns true if a custom style directory is configured.
func (r *StyleResolver) HasCustomLoader() bool {
	return r.custom != nil
}

// Compile-time interface check.
var _ StyleLoader = (*StyleResolver)(nil)
