// Package assets provides the built-in reference style specifications.
//
// Styles are YAML documents embedded at compile time under styles/. A
// StyleResolver combines the embedded set with an optional directory of
// custom styles on disk: custom styles take precedence by name, embedded
// styles fill the rest, and the union is what the registry enumerates.
//
// Style names are validated against path separators and traversal
// sequences, and filesystem loads verify the resolved path stays within the
// configured base directory.
package assets
