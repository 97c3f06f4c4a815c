package audio

import (
	"encoding/binary"
	"testing"
)

func linear16(samples ...int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		encoding string
		rate     string
		want     Format
		wantErr  bool
	}{
		{"", "", DefaultFormat(), false},
		{"linear16", "48000", Format{EncodingLinear16, 48000}, false},
		{"mulaw", "8000", Format{EncodingMulaw, 8000}, false},
		{"mulaw", "", Format{EncodingMulaw, EngineSampleRate}, false},
		{"opus", "", Format{}, true},
		{"", "abc", Format{}, true},
		{"", "4000", Format{}, true},
		{"", "96000", Format{}, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.encoding, tt.rate)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q/%q: expected error %v, got %v", tt.encoding, tt.rate, tt.wantErr, err)
		}
		if got != tt.want {
			t.Errorf("%q/%q: expected %+v, got %+v", tt.encoding, tt.rate, tt.want, got)
		}
	}
}

func TestConverter_Passthrough(t *testing.T) {
	c := NewConverter(DefaultFormat())
	if !c.Passthrough() {
		t.Fatal("Expected passthrough for engine format")
	}

	frame := linear16(0, 1000, -1000)
	out, err := c.Convert(frame)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if string(out) != string(frame) {
		t.Errorf("Expected frame unchanged, got %v", out)
	}
}

func TestConverter_CarriesOddByte(t *testing.T) {
	c := NewConverter(DefaultFormat())
	frame := linear16(1000, -1000)

	out, err := c.Convert(frame[:3])
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("Expected 2 bytes, got %d", len(out))
	}

	out, err = c.Convert(frame[3:])
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(out) != 2 || int16(binary.LittleEndian.Uint16(out)) != -1000 {
		t.Errorf("Expected carried sample -1000, got %v", out)
	}
}

func TestConverter_Resamples(t *testing.T) {
	samples := make([]int16, 4800) // 0.1 s at 48 kHz
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	c := NewConverter(Format{Encoding: EncodingLinear16, SampleRate: 48000})
	out, err := c.Convert(linear16(samples...))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(out) != 1600*2 {
		t.Errorf("Expected 1600 samples at 16 kHz, got %d", len(out)/2)
	}
}

func TestConverter_Mulaw(t *testing.T) {
	c := NewConverter(Format{Encoding: EncodingMulaw, SampleRate: 8000})

	out, err := c.Convert([]byte{0xFF, 0x80, 0x00, 0x7F})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	// 8 kHz doubles to 16 kHz
	if len(out) != 8*2 {
		t.Fatalf("Expected 8 samples, got %d", len(out)/2)
	}
	if got := int16(binary.LittleEndian.Uint16(out[0:])); got != 0 {
		t.Errorf("Expected silence first, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[4:])); got != 8031 {
		t.Errorf("Expected 8031, got %d", got)
	}
}

func TestConverter_EmptyFrame(t *testing.T) {
	c := NewConverter(DefaultFormat())
	if _, err := c.Convert(nil); err != ErrEmptyFrame {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}
}

func TestMulawToLinear(t *testing.T) {
	tests := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},
		{0x7F, 0},
		{0x80, 8031},
		{0x00, -8031},
	}

	for _, tt := range tests {
		if got := mulawToLinear(tt.in); got != tt.want {
			t.Errorf("mulawToLinear(%#x): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	if got := len(resample(samples, 8000, 16000)); got != 200 {
		t.Errorf("Expected 200 samples, got %d", got)
	}
	if got := len(resample(samples, 16000, 8000)); got != 50 {
		t.Errorf("Expected 50 samples, got %d", got)
	}
	if got := len(resample(samples, 8000, 8000)); got != 100 {
		t.Errorf("Expected unchanged length 100, got %d", got)
	}
	if got := resample(nil, 8000, 16000); len(got) != 0 {
		t.Errorf("Expected empty output, got %d", len(got))
	}
}
