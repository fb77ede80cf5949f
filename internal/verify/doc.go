// Package verify checks copied-back set members against their manifests and
// reconstructs missing or corrupt members from parity.
package verify
