// Package parity produces and describes the redundancy shards of a set: an
// in-process Reed-Solomon engine, an external parchive-style tool wrapper,
// and the per-set manifest that records member sizes and checksums for
// restore-time integrity decisions.
package parity
