package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource    = "modhost/source/v1"
	DomainNamespace = "modhost/namespace/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash computes the integrity hash of module source text.
// Recorded on every graph record and checked against lockfiles.
func SourceHash(text string) string {
	return hashWithDomain(DomainSource, []byte(text))
}

// NamespaceHash computes a stable hash of a module namespace (its exports).
// Returns error if the namespace cannot be canonically marshaled.
func NamespaceHash(ns Object) (string, error) {
	canonical, err := MarshalCanonical(ns)
	if err != nil {
		return "", fmt.Errorf("NamespaceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainNamespace, canonical), nil
}
