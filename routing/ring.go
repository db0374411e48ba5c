package routing

import (
	"crypto/sha1"
	"fmt"
	"math/big"
	"strconv"
)

// Ring is the identifier space [0, 2^bits) that node and key hashes live in.
// A Ring holds no mutable state and is safe to share between nodes.
type Ring struct {
	bits    int
	modulus *big.Int
}

// NewRing creates a ring of 2^bits identifiers
func NewRing(bits int) (*Ring, error) {
	if bits < 1 {
		return nil, fmt.Errorf("invalid ring size: %d bits (must be >= 1)", bits)
	}
	return &Ring{
		bits:    bits,
		modulus: new(big.Int).Lsh(big.NewInt(1), uint(bits)),
	}, nil
}

// Bits returns λ, the width of the identifier space
func (r *Ring) Bits() int { return r.bits }

// Size returns 2^λ
func (r *Ring) Size() *big.Int { return new(big.Int).Set(r.modulus) }

// Hash maps an arbitrary key onto the ring: SHA1(key) mod 2^λ.
func (r *Ring) Hash(key []byte) *big.Int {
	sum := sha1.Sum(key)
	h := new(big.Int).SetBytes(sum[:])
	return h.Mod(h, r.modulus)
}

// HashString is Hash for string keys
func (r *Ring) HashString(key string) *big.Int {
	return r.Hash([]byte(key))
}

// NodeHash returns the ring position of a node. Nodes hash their decimal id,
// so every node can compute any neighbour's position from its id alone.
func (r *Ring) NodeHash(id NodeID) *big.Int {
	return r.HashString(strconv.FormatUint(uint64(id), 10))
}

// Distance returns the length of the shorter arc between a and b.
func (r *Ring) Distance(a, b *big.Int) *big.Int {
	// big.Int.Mod is Euclidean, so both arcs are non-negative
	w1 := new(big.Int).Sub(a, b)
	w1.Mod(w1, r.modulus)
	w2 := new(big.Int).Sub(b, a)
	w2.Mod(w2, r.modulus)
	if w1.Cmp(w2) < 0 {
		return w1
	}
	return w2
}
