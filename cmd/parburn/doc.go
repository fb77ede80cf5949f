// Command parburn archives a directory tree onto optical discs with parity
// redundancy and verifies or reconstructs the result years later.
package main
