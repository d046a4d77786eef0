// Package specifier canonicalizes module references into unique identities.
//
// A Specifier is the only identity the host uses for a module. Two import
// statements that refer to the same module, however they are spelled,
// resolve to equal Specifiers; the module graph relies on that equality to
// deduplicate loads.
//
// Supported schemes:
//   - file:  local filesystem modules (the default for paths)
//   - http:, https:  remote modules (loading is gated by the loader)
//   - mem:  in-memory modules, used by embedders and tests
//
// Resolution is pure: it never touches the filesystem or the network.
package specifier
