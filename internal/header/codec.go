package header

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zecrx/randomx-miner/internal/minererr"
	"github.com/zecrx/randomx-miner/internal/target"
)

// TemplateDoc is the shape of a getblocktemplate RPC reply this miner
// consumes. Field names mirror the node's JSON exactly; see spec.md §4.1.
type TemplateDoc struct {
	Version           uint32 `json:"version"`
	PreviousBlockHash string `json:"previousblockhash"`
	CurTime           uint32 `json:"curtime"`
	Bits              string `json:"bits"`
	Height            uint32 `json:"height"`
	RandomXSeedHeight uint64 `json:"randomxseedheight"`
	RandomXSeedHash   string `json:"randomxseedhash"`

	RandomXNextSeedHash string `json:"randomxnextseedhash,omitempty"`
	Target              string `json:"target,omitempty"`

	DefaultRoots struct {
		MerkleRoot           string `json:"merkleroot"`
		BlockCommitmentsHash string `json:"blockcommitmentshash"`
	} `json:"defaultroots"`

	// BlockCommitmentsHash is the top-level fallback used when
	// defaultroots.blockcommitmentshash is absent.
	BlockCommitmentsHash string `json:"blockcommitmentshash,omitempty"`

	CoinbaseTxn struct {
		Data string `json:"data"`
	} `json:"coinbasetxn"`

	Transactions []struct {
		Data string `json:"data"`
	} `json:"transactions,omitempty"`
}

func templateErr(op string, err error) error {
	return minererr.New(minererr.KindTemplate, op, err)
}

// decodeDisplayHex decodes a hex string that represents a hash in display
// (byte-reversed) order and returns its internal-order bytes.
func decodeDisplayHex(field, s string) (InternalHash, error) {
	var out InternalHash
	if s == "" {
		return out, templateErr(field, fmt.Errorf("missing required field"))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, templateErr(field, fmt.Errorf("invalid hex: %w", err))
	}
	if len(raw) != HashSize {
		return out, templateErr(field, fmt.Errorf("expected %d bytes, got %d", HashSize, len(raw)))
	}
	var disp DisplayHash
	copy(disp[:], raw)
	return disp.ToInternal(), nil
}

// decodeInternalHex decodes a hex string that is already in internal order.
func decodeInternalHex(field, s string) (InternalHash, error) {
	var out InternalHash
	if s == "" {
		return out, templateErr(field, fmt.Errorf("missing required field"))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, templateErr(field, fmt.Errorf("invalid hex: %w", err))
	}
	if len(raw) != HashSize {
		return out, templateErr(field, fmt.Errorf("expected %d bytes, got %d", HashSize, len(raw)))
	}
	copy(out[:], raw)
	return out, nil
}

// parseBits parses a hex bits string as a big-endian u32, per spec.md §4.1.
func parseBits(s string) (uint32, error) {
	if s == "" {
		return 0, templateErr("bits", fmt.Errorf("missing required field"))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, templateErr("bits", fmt.Errorf("invalid hex: %w", err))
	}
	if len(raw) != 4 {
		return 0, templateErr("bits", fmt.Errorf("expected 4 bytes, got %d", len(raw)))
	}
	return binary.BigEndian.Uint32(raw), nil
}

// DecodeTemplate converts a TemplateDoc into a BlockTemplate, applying the
// byte-order discipline of spec.md invariants H1/H2. It fails with a
// minererr of KindTemplate when any required field is missing or mis-sized.
func DecodeTemplate(doc *TemplateDoc) (*BlockTemplate, error) {
	if doc.Version == 0 {
		// version 0 is not itself invalid on the wire and is not rejected
		// here; an entirely zero-value doc fails below on its first missing
		// required hash field.
	}

	prevHash, err := decodeDisplayHex("previousblockhash", doc.PreviousBlockHash)
	if err != nil {
		return nil, err
	}

	merkleRoot, err := decodeDisplayHex("merkleroot", doc.DefaultRoots.MerkleRoot)
	if err != nil {
		return nil, err
	}

	commitmentsHex := doc.DefaultRoots.BlockCommitmentsHash
	if commitmentsHex == "" {
		commitmentsHex = doc.BlockCommitmentsHash
	}
	commitments, err := decodeDisplayHex("blockcommitmentshash", commitmentsHex)
	if err != nil {
		return nil, err
	}

	seedHash, err := decodeInternalHex("randomxseedhash", doc.RandomXSeedHash)
	if err != nil {
		return nil, err
	}

	var nextSeedHash *InternalHash
	if doc.RandomXNextSeedHash != "" {
		h, err := decodeInternalHex("randomxnextseedhash", doc.RandomXNextSeedHash)
		if err != nil {
			return nil, err
		}
		nextSeedHash = &h
	}

	bits, err := parseBits(doc.Bits)
	if err != nil {
		return nil, err
	}

	if doc.CoinbaseTxn.Data == "" {
		return nil, templateErr("coinbasetxn.data", fmt.Errorf("missing required field"))
	}

	otherTxns := make([]string, 0, len(doc.Transactions))
	for _, tx := range doc.Transactions {
		otherTxns = append(otherTxns, tx.Data)
	}

	bt := &BlockTemplate{
		Version:              doc.Version,
		Time:                 doc.CurTime,
		Bits:                 bits,
		Height:               doc.Height,
		SeedHeight:           doc.RandomXSeedHeight,
		PreviousBlockHash:    prevHash,
		MerkleRoot:           merkleRoot,
		BlockCommitmentsHash: commitments,
		SeedHash:             seedHash,
		NextSeedHash:         nextSeedHash,
		CoinbaseTxnHex:       doc.CoinbaseTxn.Data,
		OtherTxnHex:          otherTxns,
	}

	if doc.Target != "" {
		raw, err := hex.DecodeString(doc.Target)
		if err != nil || len(raw) != 32 {
			return nil, templateErr("target", fmt.Errorf("invalid target hex"))
		}
		// target is supplied in display (big-endian) order by nodes that
		// emit it at all; reverse into the little-endian storage form used
		// throughout this package.
		for i := 0; i < 32; i++ {
			bt.Target[i] = raw[31-i]
		}
	} else {
		t, err := target.CompactToTarget(bits)
		if err != nil {
			return nil, templateErr("bits", err)
		}
		bt.Target = t
	}

	buildHeaderPrefix(bt)

	return bt, nil
}

// buildHeaderPrefix fills bt.HeaderPrefix per invariant H1.
func buildHeaderPrefix(bt *BlockTemplate) {
	var buf [PrefixSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], bt.Version)
	copy(buf[4:36], bt.PreviousBlockHash[:])
	copy(buf[36:68], bt.MerkleRoot[:])
	copy(buf[68:100], bt.BlockCommitmentsHash[:])
	binary.LittleEndian.PutUint32(buf[100:104], bt.Time)
	binary.LittleEndian.PutUint32(buf[104:108], bt.Bits)
	bt.HeaderPrefix = buf
}
