// Package docs renders the self-documentation burned onto every disc: the
// run configuration and the exact invocation, in plain text.
package docs
