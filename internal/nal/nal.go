// Package nal classifies H.264 Annex B payloads and extracts the stream
// parameters the pipeline needs for decoder configuration and diagnostics.
package nal

import (
	"errors"
	"fmt"

	"github.com/periscope-kvm/periscope/media"
)

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
)

// classifyOffset is the byte inspected for classification: the NAL header
// byte following a 4-byte Annex B start code. headerLen is the minimum
// payload length for that read to be in range.
const (
	classifyOffset = 4
	headerLen      = 6
)

// ErrChunkTooShort is returned for payloads shorter than the Annex B header
// region, which would otherwise force an out-of-range read.
var ErrChunkTooShort = errors.New("chunk shorter than Annex B header region")

// Classify derives the frame kind of an encoded chunk from the NAL type of
// its leading NAL unit: coded slice (type 1) means delta, everything else is
// treated as the start of a key frame. This binary split intentionally does
// not distinguish parameter sets or SEI from IDR slices; backends prepend
// those to keyframe payloads.
func Classify(b []byte) (media.FrameKind, error) {
	if len(b) < headerLen {
		return media.KeyFrame, fmt.Errorf("%w: %d bytes", ErrChunkTooShort, len(b))
	}
	if b[classifyOffset]&0x1F == TypeSlice {
		return media.DeltaFrame, nil
	}
	return media.KeyFrame, nil
}

// Unit is a single NAL unit extracted from an Annex B byte stream.
type Unit struct {
	Type byte   // 5-bit NAL type
	Data []byte // raw NAL data including the header byte, without start code
}

// ParseAnnexB scans an Annex B byte stream and extracts NAL units. Both
// 3-byte (0x000001) and 4-byte (0x00000001) start codes are recognized;
// zeros preceding a start code belong to the start code, not the preceding
// unit.
func ParseAnnexB(data []byte) []Unit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type startCode struct {
		at        int
		dataStart int
	}

	var codes []startCode
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				codes = append(codes, startCode{at: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				codes = append(codes, startCode{at: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []Unit
	for idx, sc := range codes {
		end := n
		if idx+1 < len(codes) {
			end = codes[idx+1].at
		}
		if sc.dataStart >= end {
			continue
		}
		d := data[sc.dataStart:end]
		units = append(units, Unit{Type: d[0] & 0x1F, Data: d})
	}
	return units
}

// IsKeyframe returns true if the NAL type is an IDR slice (type 5).
func IsKeyframe(nalType byte) bool {
	return nalType == TypeIDR
}

// removeEmulationPrevention strips the 0x03 emulation prevention bytes that
// the encoder inserts after 0x0000 sequences inside NAL payloads.
func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}
