// Package burn wraps the disc-writing tool behind a Burner interface, with
// a recording implementation for dry runs.
package burn
