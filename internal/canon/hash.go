package canon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for hash separation. The version suffix enables future
// algorithm migration without colliding with historical values.
const (
	DomainSeed   = "cohortgen/seed/v1"
	DomainEntity = "cohortgen/entity/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HexHash returns the hex encoding of a domain-separated hash.
func HexHash(domain string, data []byte) string {
	sum := HashWithDomain(domain, data)
	return hex.EncodeToString(sum[:])
}

// HashUint64Pair splits a domain-separated hash into two big-endian uint64
// words. Used to key PCG random streams from canonical seed material.
func HashUint64Pair(domain string, data []byte) (uint64, uint64) {
	sum := HashWithDomain(domain, data)
	return binary.BigEndian.Uint64(sum[0:8]), binary.BigEndian.Uint64(sum[8:16])
}

// EntityFingerprint computes a stable identifier fragment for a generated
// entity from its profile, root seed, and index. The fragment is the same
// across runs, which is what makes repeated execution byte-identical.
func EntityFingerprint(profileID string, rootSeed int64, index int) (string, error) {
	obj := map[string]any{
		"profile": profileID,
		"seed":    rootSeed,
		"index":   index,
	}
	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("entity fingerprint: %w", err)
	}
	return HexHash(DomainEntity, data)[:24], nil
}
