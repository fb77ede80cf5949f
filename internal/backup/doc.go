// Package backup orchestrates a full run: scratch preparation, the archive
// encoder, redundancy set building, parity, disc sequencing, and run history.
package backup
