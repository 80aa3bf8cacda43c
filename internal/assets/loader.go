package assets

import (
	"fmt"
	"strings"
)

// StyleLoader defines the contract for loading style specifications.
// Implementations may load from embedded assets, the filesystem, or both.
type StyleLoader interface {
	// LoadStyle loads a style specification by name (without the .yaml
	// extension). Returns ErrStyleNotFound if the style doesn't exist.
	LoadStyle(name string) ([]byte, error)

	// Names lists the available style names, unsorted.
	Names() ([]string, error)
}

// ValidateStyleName checks that a style name is safe for use as a filename.
// Returns ErrInvalidStyleName if the name is empty or contains path
// separators or dots.
func ValidateStyleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidStyleName)
	}
	if strings.ContainsAny(name, "/\\.") {
		return fmt.Errorf("%w: %q", ErrInvalidStyleName, name)
	}
	return nil
}
