package header

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// PutVarInt appends a Bitcoin-style compact-size encoding of n to dst and
// returns the result, per spec.md §6.2.
func PutVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(n))
		return append(append(dst, 0xfd), buf...)
	case n <= 0xffffffff:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(n))
		return append(append(dst, 0xfe), buf...)
	default:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, n)
		return append(append(dst, 0xff), buf...)
	}
}

// BuildSubmission assembles the bytes submitted to the node's submitblock
// RPC, per spec.md §4.1/§6.2:
//
//	header(140) || varint(32) || pow_hash(32) || varint(1+n_tx) ||
//	    coinbase_bytes || tx1_bytes || ...
//
// fullHeader is the 140-byte hash input (header prefix + winning nonce);
// powHash is the 32-byte RandomX hash that met the target.
func BuildSubmission(bt *BlockTemplate, fullHeader [FullHeaderSize]byte, powHash [HashSize]byte) ([]byte, error) {
	coinbase, err := hex.DecodeString(bt.CoinbaseTxnHex)
	if err != nil {
		return nil, fmt.Errorf("header: invalid coinbase hex: %w", err)
	}

	others := make([][]byte, 0, len(bt.OtherTxnHex))
	for i, txHex := range bt.OtherTxnHex {
		raw, err := hex.DecodeString(txHex)
		if err != nil {
			return nil, fmt.Errorf("header: invalid transaction %d hex: %w", i, err)
		}
		others = append(others, raw)
	}

	out := make([]byte, 0, FullHeaderSize+1+HashSize+8+len(coinbase)+len(bt.OtherTxnHex)*64)
	out = append(out, fullHeader[:]...)
	out = PutVarInt(out, HashSize)
	out = append(out, powHash[:]...)
	out = PutVarInt(out, uint64(1+len(others)))
	out = append(out, coinbase...)
	for _, raw := range others {
		out = append(out, raw...)
	}

	return out, nil
}

// AssembleHashInput concatenates a header prefix and nonce into the
// 140-byte buffer RandomX hashes, per spec.md §9's Open Question (kept as
// a pure function rather than a shared mutable field).
func AssembleHashInput(prefix [PrefixSize]byte, nonce [NonceSize]byte) [FullHeaderSize]byte {
	var out [FullHeaderSize]byte
	copy(out[:PrefixSize], prefix[:])
	copy(out[PrefixSize:], nonce[:])
	return out
}
