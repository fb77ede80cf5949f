// Package redundancy implements the set builder: it consumes the encoder's
// slice stream, groups consecutive slices into disc-sized redundancy sets,
// and triggers parity generation as each set closes.
package redundancy
