// Package value provides the canonical value model shared by the host and
// its engines.
//
// Module exports, settled promise results, and trace details are all
// represented as Value. The package imports nothing internal so every other
// package can depend on it.
//
// Key design constraints:
//   - NO float types anywhere - numbers are int64
//   - Object keys are ordered by UTF-16 code units when serialized
//   - Canonical JSON (RFC 8785) is the only serialization used for hashing
package value
