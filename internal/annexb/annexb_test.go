package annexb

import "testing"

func TestSplitNALUsHandlesThreeAndFourByteStartCodes(t *testing.T) {
	b := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 1, 0x68, 0xBB, 0, 0, 1, 0x65, 0xCC}
	nalus := SplitNALUs(b)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NALUs, got %d", len(nalus))
	}
	if Type(nalus[0]) != TypeSPS || Type(nalus[1]) != TypePPS || Type(nalus[2]) != TypeIDRSlice {
		t.Fatalf("unexpected types: %d %d %d", Type(nalus[0]), Type(nalus[1]), Type(nalus[2]))
	}
}

func TestIsIDRDetectsIDRSlice(t *testing.T) {
	nalus := [][]byte{{0x67, 0}, {0x68, 0}}
	if IsIDR(nalus) {
		t.Fatalf("expected no IDR among SPS/PPS only")
	}
	nalus = append(nalus, []byte{0x65, 0})
	if !IsIDR(nalus) {
		t.Fatalf("expected IDR detected")
	}
}

func TestSplitNALUsEmptyInput(t *testing.T) {
	if got := SplitNALUs(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
