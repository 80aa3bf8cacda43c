package assets

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed styles/*.yaml
var styles embed.FS

// EmbeddedLoader loads style specifications from the embedded filesystem.
// Implements StyleLoader.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// LoadStyle loads an embedded style specification by name.
func (e *EmbeddedLoader) LoadStyle(name string) ([]byte, error) {
	if err := ValidateStyleName(name); err != nil {
		return nil, err
	}

	content, err := styles.ReadFile("styles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrStyleNotFound, name)
	}

	return content, nil
}

// Names lists the embedded style names.
func (e *EmbeddedLoader) Names() ([]string, error) {
	entries, err := styles.ReadDir("styles")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStyleRead, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Compile-time interface check.
var _ StyleLoader = (*EmbeddedLoader)(nil)
