package nal

import (
	"errors"
	"testing"

	"github.com/periscope-kvm/periscope/media"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want media.FrameKind
	}{
		{
			name: "IDR slice is key",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88},
			want: media.KeyFrame,
		},
		{
			name: "coded slice is delta",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A},
			want: media.DeltaFrame,
		},
		{
			name: "SPS is key",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42},
			want: media.KeyFrame,
		},
		{
			name: "SEI is key",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x06, 0xAA},
			want: media.KeyFrame,
		},
		{
			name: "low five bits only",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0xE1, 0x00}, // 0xE1 & 0x1F == 1
			want: media.DeltaFrame,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Classify(tt.data)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("kind: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyShortChunk(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 4, 5} {
		_, err := Classify(make([]byte, n))
		if !errors.Is(err, ErrChunkTooShort) {
			t.Errorf("len %d: got %v, want ErrChunkTooShort", n, err)
		}
	}

	if _, err := Classify(make([]byte, 6)); err != nil {
		t.Errorf("len 6: unexpected error %v", err)
	}
}

func TestParseAnnexB(t *testing.T) {
	t.Parallel()

	data := []byte{
		// 4-byte start code + SPS (NAL type 7)
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		// 4-byte start code + PPS (NAL type 8)
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		// 3-byte start code + IDR (NAL type 5)
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00,
	}

	units := ParseAnnexB(data)
	if len(units) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(units))
	}

	wantTypes := []byte{TypeSPS, TypePPS, TypeIDR}
	for i, want := range wantTypes {
		if units[i].Type != want {
			t.Errorf("unit %d type: got %d, want %d", i, units[i].Type, want)
		}
	}

	if !IsKeyframe(units[2].Type) {
		t.Error("IsKeyframe returned false for IDR")
	}
	if IsKeyframe(units[0].Type) {
		t.Error("IsKeyframe returned true for SPS")
	}
}

func TestParseAnnexBTrailingZeroBelongsToStartCode(t *testing.T) {
	t.Parallel()

	// Zeros preceding a start code are part of the prefix, not NALU data:
	// the SEI here has 3 bytes and the second start code is 4 bytes long.
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	units := ParseAnnexB(data)
	if len(units) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(units))
	}
	if got := len(units[0].Data); got != 3 {
		t.Errorf("SEI length: got %d, want 3", got)
	}
	if units[1].Type != TypeSlice {
		t.Errorf("second unit type: got %d, want %d", units[1].Type, TypeSlice)
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()

	if units := ParseAnnexB(nil); units != nil {
		t.Errorf("expected nil for empty input, got %d units", len(units))
	}
	if units := ParseAnnexB([]byte{0x00, 0x01}); units != nil {
		t.Errorf("expected nil for too-short input, got %d units", len(units))
	}
}
