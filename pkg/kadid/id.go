// Package kadid implements the fixed-width identifier and XOR metric
// that the rest of the DHT is built on: peer and key identifiers, the
// distance function, and the total order used to rank candidates in a
// lookup shortlist.
package kadid

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"math/bits"

	util "github.com/ipfs/go-ipfs-util"
	"github.com/multiformats/go-multihash"
	sha256 "github.com/minio/sha256-simd"
)

// Size is the width, in bytes, of every ID. It is a build-time
// constant (spec requires >= 20, divisible by 8); the reference
// deployment uses 32.
const Size = 32

// Bits is the number of leading-zero-bit buckets an ID space of this
// width has (Size*8).
const Bits = Size * 8

// ID is a fixed-width identifier for a peer or a key.
type ID [Size]byte

// Zero is the all-zero ID.
var Zero ID

// FromBytes copies b into a new ID. Slices shorter than Size are
// zero-padded and longer ones truncated, so callers can pass in hashes
// of any conventional width.
func FromBytes(b []byte) ID {
	var id ID
	n := copy(id[:], b)
	_ = n
	return id
}

// Random returns a cryptographically random ID, useful for tests and
// for generating a peer's own identifier at first start.
func Random() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken;
		// nothing downstream can recover from that.
		panic(err)
	}
	return id
}

// HashKey derives a target ID from an opaque string key, the way a
// caller turns a GET/PUT key into a routable target before issuing an
// iterative lookup. Mirrors original_source/dht.py's distributed_hash,
// using sha256-simd instead of hashlib.md5.
func HashKey(key string) ID {
	sum := sha256.Sum256([]byte(key))
	return FromBytes(sum[:])
}

// XOR returns the component-wise XOR of a and b.
func XOR(a, b ID) ID {
	return FromBytes(util.XOR(a[:], b[:]))
}

// LeadingZeroBits returns the number of leading zero bits in id,
// counted from the most significant bit of byte 0. For the all-zero ID
// it returns Bits-1 (the saturated maximum), per spec: self-distance
// and zero-id distance are defined identically so that "identical to
// self" sorts to the far end of the table rather than causing self to
// collide with a regular bucket.
func LeadingZeroBits(id ID) int {
	for i, b := range id {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b)
		}
	}
	return Bits - 1
}

// Distance is the bucket metric: the number of leading zero bits
// shared between a and b's XOR. Larger means closer (more shared
// prefix bits).
func Distance(a, b ID) int {
	return LeadingZeroBits(XOR(a, b))
}

// Compare gives the total order spec.md mandates for shortlist
// ranking: primarily by distance-to-target descending (more shared
// bits is "smaller", i.e. closer), secondarily by the lexicographic
// order of the raw XOR bytes, so that two peers with the same
// leading-zero-bit count are still ordered deterministically.
//
// Compare(target, a, b) < 0 means a is strictly closer to target than b.
func Compare(target, a, b ID) int {
	xa := XOR(target, a)
	xb := XOR(target, b)
	da := LeadingZeroBits(xa)
	db := LeadingZeroBits(xb)
	if da != db {
		// more leading zero bits = closer = sorts first
		return db - da
	}
	return bytes.Compare(xa[:], xb[:])
}

// Less reports whether a is closer to target than b, per Compare.
func Less(target, a, b ID) bool {
	return Compare(target, a, b) < 0
}

// Equal reports byte-wise equality.
func (id ID) Equal(other ID) bool {
	return id == other
}

// Bytes returns the raw bytes of id.
func (id ID) Bytes() []byte {
	return id[:]
}

// String renders id as a short hex string: the first 16 hex characters
// of its identity-multihash encoding (the two-byte multihash header
// followed by the first six bytes of the id).
func (id ID) String() string {
	mh, err := multihash.Encode(id[:], multihash.IDENTITY)
	if err != nil {
		// IDENTITY encoding of a fixed-size buffer cannot fail; fall
		// back to plain hex defensively.
		return hex.EncodeToString(id[:])
	}
	return hex.EncodeToString([]byte(mh))[:16]
}
