package header

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

// reverseHex decodes a display-order hex string and returns its bytes
// reversed into internal order, mirroring what DecodeTemplate does
// internally — used here only to build expected values for assertions.
func reverseHex(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad test hex %q: %v", s, err)
	}
	out := make([]byte, len(raw))
	for i := range raw {
		out[i] = raw[len(raw)-1-i]
	}
	return out
}

// TestDecodeTemplateHeaderLayout exercises S1 from spec.md §8 (block 1583
// reconstruction), checking the header-prefix byte layout (H1) and the
// display/internal reversal discipline (H2). It does not compute the
// RandomX hash itself, which requires the cgo-bound library; no test in
// this repository checks S1's expected hash value.
func TestDecodeTemplateHeaderLayout(t *testing.T) {
	// 32-byte fixtures built from ascending byte runs rather than hand-typed
	// hex, to avoid odd-length typos; each one differs from its own reversal,
	// so only the reversal/placement behavior is under test here, not the
	// literal spec.md S1 hash values.
	seqHex := func(start byte) string {
		b := make([]byte, 32)
		for i := range b {
			b[i] = start + byte(i)
		}
		return hex.EncodeToString(b)
	}
	prevHash := seqHex(0x23)
	merkleRoot := seqHex(0x60)
	commitments := seqHex(0xa0)
	seedHash := seqHex(0x01)

	doc := &TemplateDoc{
		Version:           4,
		PreviousBlockHash: prevHash,
		CurTime:           1760323089,
		Bits:              "1f09daa8",
		Height:            1583,
		RandomXSeedHeight: 0,
		RandomXSeedHash:   seedHash,
	}
	doc.DefaultRoots.MerkleRoot = merkleRoot
	doc.DefaultRoots.BlockCommitmentsHash = commitments
	doc.CoinbaseTxn.Data = "00"

	bt, err := DecodeTemplate(doc)
	if err != nil {
		t.Fatalf("DecodeTemplate: %v", err)
	}

	if got := binary.LittleEndian.Uint32(bt.HeaderPrefix[0:4]); got != 4 {
		t.Errorf("version: got %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint32(bt.HeaderPrefix[100:104]); got != 1760323089 {
		t.Errorf("time: got %d, want 1760323089", got)
	}
	wantBits := uint32(0x1f09daa8)
	if got := binary.LittleEndian.Uint32(bt.HeaderPrefix[104:108]); got != wantBits {
		t.Errorf("bits: got %#x, want %#x", got, wantBits)
	}

	wantPrev := reverseHex(t, doc.PreviousBlockHash)
	if !bytes.Equal(bt.HeaderPrefix[4:36], wantPrev) {
		t.Errorf("prev hash not reversed correctly:\n got  %x\n want %x", bt.HeaderPrefix[4:36], wantPrev)
	}

	wantMerkle := reverseHex(t, doc.DefaultRoots.MerkleRoot)
	if !bytes.Equal(bt.HeaderPrefix[36:68], wantMerkle) {
		t.Errorf("merkle root not reversed correctly:\n got  %x\n want %x", bt.HeaderPrefix[36:68], wantMerkle)
	}

	wantCommitments := reverseHex(t, doc.DefaultRoots.BlockCommitmentsHash)
	if !bytes.Equal(bt.HeaderPrefix[68:100], wantCommitments) {
		t.Errorf("commitments not reversed correctly:\n got  %x\n want %x", bt.HeaderPrefix[68:100], wantCommitments)
	}

	// Seed hash must NOT be reversed (it's already internal order).
	seedRaw, _ := hex.DecodeString(doc.RandomXSeedHash)
	if !bytes.Equal(bt.SeedHash[:], seedRaw) {
		t.Errorf("seed hash should be used verbatim:\n got  %x\n want %x", bt.SeedHash[:], seedRaw)
	}
}

func padHex(s string) string {
	raw, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	if len(raw) >= 32 {
		return hex.EncodeToString(raw[:32])
	}
	out := make([]byte, 32)
	copy(out, raw)
	return hex.EncodeToString(out)
}

func TestDecodeTemplateMissingField(t *testing.T) {
	doc := &TemplateDoc{}
	if _, err := DecodeTemplate(doc); err == nil {
		t.Fatal("expected error for empty template doc")
	}
}

func TestDecodeTemplateBlockCommitmentsFallback(t *testing.T) {
	doc := &TemplateDoc{
		Version:           1,
		PreviousBlockHash: padHex("aa"),
		CurTime:           100,
		Bits:              "1d00ffff",
		Height:            1,
		RandomXSeedHash:   padHex("bb"),
	}
	doc.DefaultRoots.MerkleRoot = padHex("cc")
	doc.BlockCommitmentsHash = padHex("dd") // top-level fallback, no defaultroots value
	doc.CoinbaseTxn.Data = "00"

	bt, err := DecodeTemplate(doc)
	if err != nil {
		t.Fatalf("DecodeTemplate: %v", err)
	}
	want := reverseHex(t, padHex("dd"))
	if !bytes.Equal(bt.BlockCommitmentsHash[:], want) {
		t.Errorf("fallback commitments hash mismatch: got %x want %x", bt.BlockCommitmentsHash[:], want)
	}
}

func TestPutVarInt(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{0xfc, []byte{0xfc}},
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		{0x100000000, []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
	}
	for _, c := range cases {
		got := PutVarInt(nil, c.n)
		if !bytes.Equal(got, c.want) {
			t.Errorf("PutVarInt(%d): got %x, want %x", c.n, got, c.want)
		}
	}
}

func TestBuildSubmission(t *testing.T) {
	bt := &BlockTemplate{
		CoinbaseTxnHex: "aabbcc",
		OtherTxnHex:    []string{"ddee"},
	}
	var full [FullHeaderSize]byte
	var hash [HashSize]byte
	for i := range full {
		full[i] = byte(i)
	}
	for i := range hash {
		hash[i] = byte(0xf0 + i%16)
	}

	out, err := BuildSubmission(bt, full, hash)
	if err != nil {
		t.Fatalf("BuildSubmission: %v", err)
	}

	if !bytes.Equal(out[:FullHeaderSize], full[:]) {
		t.Fatal("header bytes not at start of submission")
	}
	rest := out[FullHeaderSize:]
	if rest[0] != 32 {
		t.Fatalf("expected varint(32) for pow hash length, got %d", rest[0])
	}
	if !bytes.Equal(rest[1:33], hash[:]) {
		t.Fatal("pow hash not placed correctly")
	}
	if rest[33] != 2 { // 1 coinbase + 1 other tx
		t.Fatalf("expected tx count varint 2, got %d", rest[33])
	}
	tail := rest[34:]
	wantTail := append(append([]byte{}, []byte{0xaa, 0xbb, 0xcc}...), []byte{0xdd, 0xee}...)
	if !bytes.Equal(tail, wantTail) {
		t.Fatalf("tx bytes mismatch: got %x want %x", tail, wantTail)
	}
}
