// Package sequencer orders a closed set's data and parity files into
// burn-ready disc bundles, attaches the run documentation to each, and
// reclaims staging space as burns are confirmed.
package sequencer
