// Package scratch manages the staging directory: free-space preflight,
// exclusive single-run ownership, and the ledger of bytes staged between
// slice production and burn confirmation.
package scratch
