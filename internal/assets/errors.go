package assets

import "errors"

// Sentinel errors for style asset operations.
var (
	// ErrStyleNotFound indicates the requested style does not exist.
	ErrStyleNotFound = errors.New("style not found")

	// ErrInvalidStyleName indicates the style name contains invalid
	// characters such as path separators or traversal sequences.
	ErrInvalidStyleName = errors.New("invalid style name")

	// ErrInvalidBasePath indicates the configured base path is not a valid
	// directory.
	ErrInvalidBasePath = errors.New("invalid base path")

	// ErrStyleRead indicates an I/O error occurred while reading a style.
	ErrStyleRead = errors.New("failed to read style")

	// ErrPathTraversal indicates an attempt to access files outside the
	// base path.
	ErrPathTraversal = errors.New("path traversal detected")
)
