// Package annexb implements the small Annex-B parsing helpers the pipeline
// needs — splitting a byte stream into individual NALUs and classifying
// their type — adapted from the teacher's h264.go (splitAnnexBNALUs,
// findStartCode, naluType).
package annexb

// SplitNALUs splits an Annex-B byte stream into its individual NALUs,
// stripping the 3- or 4-byte start codes.
func SplitNALUs(b []byte) [][]byte {
	var nalus [][]byte
	i := 0
	for {
		scStart, scEnd := findStartCode(b, i)
		if scStart < 0 {
			break
		}
		nextStart, _ := findStartCode(b, scEnd)
		if nextStart < 0 {
			if n := b[scEnd:]; len(n) > 0 {
				nalus = append(nalus, n)
			}
			break
		}
		if n := b[scEnd:nextStart]; len(n) > 0 {
			nalus = append(nalus, n)
		}
		i = nextStart
	}
	return nalus
}

func findStartCode(b []byte, from int) (int, int) {
	for i := from; i+3 <= len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i, i + 3
		}
		if i+4 <= len(b) && b[i] == 0 && b[i+1] == 0 && b[i+2] == 0 && b[i+3] == 1 {
			return i, i + 4
		}
	}
	return -1, -1
}

// NALU type constants (Table 7-1 of the H.264 spec), the ones the pipeline
// cares about for SPS/PPS/IDR detection.
const (
	TypeSlice    = 1
	TypeIDRSlice = 5
	TypeSPS      = 7
	TypePPS      = 8
)

// Type returns n's NAL unit type (the low 5 bits of its header byte), or 0
// for an empty NALU.
func Type(n []byte) uint8 {
	if len(n) == 0 {
		return 0
	}
	return n[0] & 0x1F
}

// IsIDR reports whether nalus (one access unit) contains an IDR slice.
func IsIDR(nalus [][]byte) bool {
	for _, n := range nalus {
		if Type(n) == TypeIDRSlice {
			return true
		}
	}
	return false
}
