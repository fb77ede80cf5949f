// Package archive models the archive encoder as a producer of a finite
// sequence of slice-completion events, wrapping the dar tool's hook-based
// notification in an explicit protocol the set builder consumes.
package archive
