// Package header converts RPC block-template documents into the 140-byte
// RandomX block header this miner hashes, and assembles the bytes a solved
// block is submitted back to the node as. See spec.md §3 and §4.1.
package header

// PrefixSize is the length in bytes of the serialized header prefix
// (everything except the nonce), per spec.md invariant H1.
const PrefixSize = 108

// HashSize is the length in bytes of a block hash, seed hash, or RandomX
// PoW hash.
const HashSize = 32

// NonceSize is the length in bytes of the nonce field appended after the
// header prefix to form the full 140-byte RandomX hash input.
const NonceSize = 32

// FullHeaderSize is PrefixSize+NonceSize, the full RandomX hash input.
const FullHeaderSize = PrefixSize + NonceSize

// DisplayHash is a 32-byte hash value received or sent in "display" order
// (byte-reversed relative to how it is stored/serialized). There is no
// implicit conversion to InternalHash (only the explicit ToInternal), per
// spec.md's Design Note on byte-order leakage.
type DisplayHash [HashSize]byte

// InternalHash is a 32-byte hash value already in internal (storage) byte
// order. DecodeTemplate builds these from the template's hex fields.
type InternalHash [HashSize]byte

// ToInternal reverses a DisplayHash into internal byte order.
func (d DisplayHash) ToInternal() InternalHash {
	var out InternalHash
	for i := 0; i < HashSize; i++ {
		out[i] = d[HashSize-1-i]
	}
	return out
}

// ToDisplay reverses an InternalHash into display byte order.
func (n InternalHash) ToDisplay() DisplayHash {
	var out DisplayHash
	for i := 0; i < HashSize; i++ {
		out[i] = n[HashSize-1-i]
	}
	return out
}

// BlockTemplate is the immutable work unit produced by DecodeTemplate from
// one getblocktemplate reply. See spec.md §3.
type BlockTemplate struct {
	Version    uint32
	Time       uint32
	Bits       uint32
	Height     uint32
	SeedHeight uint64

	PreviousBlockHash     InternalHash
	MerkleRoot            InternalHash
	BlockCommitmentsHash  InternalHash
	SeedHash              InternalHash
	NextSeedHash          *InternalHash

	Target [32]byte

	// HeaderPrefix holds the first PrefixSize bytes of the 140-byte RandomX
	// hash input (invariant H1). The trailing 32 nonce bytes are kept
	// separate from this value everywhere in the engine, per spec.md §9's
	// Open Question: a worker's nonce buffer, never a shared mutable field
	// on BlockTemplate, owns those bytes.
	HeaderPrefix [PrefixSize]byte

	CoinbaseTxnHex string
	OtherTxnHex    []string
}
