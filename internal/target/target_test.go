package target

import (
	"encoding/binary"
	"testing"
)

// TestCompactToTargetS2 exercises S2 from spec.md §8: bits=0x1f09daa8 should
// decode to a target whose display (big-endian) form is 0009daa800...00.
func TestCompactToTargetS2(t *testing.T) {
	got, err := CompactToTarget(0x1f09daa8)
	if err != nil {
		t.Fatalf("CompactToTarget: %v", err)
	}

	var want [Size]byte
	want[28] = 0xa8
	want[29] = 0xda
	want[30] = 0x09

	if got != want {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestCompactToTargetSmallSize(t *testing.T) {
	// size <= 3: mantissa shifted right, written into the lowest 3 bytes.
	got, err := CompactToTarget(0x03123456)
	if err != nil {
		t.Fatalf("CompactToTarget: %v", err)
	}
	var want [Size]byte
	want[0] = 0x56
	want[1] = 0x34
	want[2] = 0x12
	if got != want {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestCompactToTargetOversizedExponent(t *testing.T) {
	if _, err := CompactToTarget(0xff000001); err != ErrOversizedExponent {
		t.Fatalf("expected ErrOversizedExponent, got %v", err)
	}
}

func TestCompactToTargetSignBit(t *testing.T) {
	// size=4, mantissa with bit 23 set (the sign bit).
	bits := uint32(4)<<24 | 0x00800000
	if _, err := CompactToTarget(bits); err != ErrOversizedExponent {
		t.Fatalf("expected ErrOversizedExponent for sign bit, got %v", err)
	}
}

// TestTargetMonotonicity exercises property 2 from spec.md §8: within the
// same size exponent, bits1 < bits2 implies target(bits1) < target(bits2).
func TestTargetMonotonicity(t *testing.T) {
	size := uint32(10)
	for m1 := uint32(1); m1 < 0x7fffff; m1 += 104729 {
		m2 := m1 + 1
		t1, err := CompactToTarget(size<<24 | m1)
		if err != nil {
			t.Fatalf("CompactToTarget(m1): %v", err)
		}
		t2, err := CompactToTarget(size<<24 | m2)
		if err != nil {
			t.Fatalf("CompactToTarget(m2): %v", err)
		}
		if Compare(t1, t2) >= 0 {
			t.Fatalf("target(bits1=%d) should be < target(bits2=%d): got %x, %x", m1, m2, t1, t2)
		}
	}
}

// TestHashMeetsTargetEdgeCases exercises S3 from spec.md §8.
func TestHashMeetsTargetEdgeCases(t *testing.T) {
	var tgt [Size]byte
	binary.LittleEndian.PutUint32(tgt[28:32], 0x00010000)

	// hash == target
	if !HashMeetsTarget(tgt, tgt) {
		t.Error("hash == target should meet target")
	}

	// hash = target - 1: the top word borrows, every lower byte becomes 0xff
	var below [Size]byte
	for i := 0; i < 28; i++ {
		below[i] = 0xff
	}
	binary.LittleEndian.PutUint32(below[28:32], 0x0000ffff)
	if !HashMeetsTarget(below, tgt) {
		t.Error("hash = target-1 should meet target")
	}

	// hash = target + 1
	above := tgt
	above[0] = 0x01
	if HashMeetsTarget(above, tgt) {
		t.Error("hash = target+1 should not meet target")
	}

	// difference in a non-top word
	hashLow := tgt
	hashLow[0] = 0xff
	if HashMeetsTarget(hashLow, tgt) {
		t.Error("a higher low word with equal top words should not meet target")
	}
	tgtLow := tgt
	tgtLow[0] = 0xff
	if !HashMeetsTarget(tgt, tgtLow) {
		t.Error("a lower low word with equal top words should meet target")
	}
}

func TestCompareConsistentWithHashMeetsTarget(t *testing.T) {
	a := [Size]byte{1: 5}
	b := [Size]byte{1: 5}
	if Compare(a, b) != 0 || !HashMeetsTarget(a, b) {
		t.Error("equal values should compare equal and meet target")
	}
}
