package codec

import (
	"math/big"

	"github.com/google/uuid"
)

// guidToUUID renders a contract-side uint256 GUID as the canonical 36-char
// hyphenated form. Contract GUIDs fit in 128 bits; the high bytes of the
// 32-byte big-endian encoding are always zero.
func guidToUUID(g *big.Int) string {
	var raw [16]byte
	g.FillBytes(raw[:])
	id, err := uuid.FromBytes(raw[:])
	if err != nil {
		// FillBytes always produces exactly 16 bytes, so this cannot fail.
		panic(err)
	}
	return id.String()
}

// uuidToGUID is the inverse of guidToUUID, turning a UUID back into its
// uint256 representation.
func uuidToGUID(id uuid.UUID) *big.Int {
	return new(big.Int).SetBytes(id[:])
}
