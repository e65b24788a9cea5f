package store

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ID is the BLAKE3 keyed digest of a snapshot's uncompressed bytes.
type ID [32]byte

// snapshotKey separates snapshot digests from any other use of BLAKE3 on
// the same bytes. Changing it invalidates every stored id.
var snapshotKey = [32]byte{
	'h', 'e', 'a', 'p', 's', 'n', 'a', 'p', '.', 's', 'n', 'a', 'p', 's', 'h', 'o',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest computes the id of a snapshot.
func Digest(data []byte) ID {
	h, err := blake3.NewKeyed(snapshotKey[:])
	if err != nil {
		// Only returned for a key of the wrong length.
		panic("store: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(data)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// String returns the 64-character hex form used in the database and CLI.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 12 hex characters.
func (id ID) Short() string {
	return hex.EncodeToString(id[:6])
}

// ParseDigest parses the 64-character hex form of an id.
func ParseDigest(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parsing snapshot id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("snapshot id is %d bytes, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}
