package audio

import (
	"errors"
	"fmt"
	"strconv"
)

// EngineSampleRate is the rate the speech engine is opened with
const EngineSampleRate = 16000

// Encoding of client audio frames
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16"
	EncodingMulaw    Encoding = "mulaw"
)

// ErrEmptyFrame is returned for zero-length input
var ErrEmptyFrame = errors.New("empty audio frame")

// Format describes how a client captures audio
type Format struct {
	Encoding   Encoding
	SampleRate int
}

// DefaultFormat matches the engine, so frames pass through untouched
func DefaultFormat() Format {
	return Format{Encoding: EncodingLinear16, SampleRate: EngineSampleRate}
}

// ParseFormat validates the encoding and rate a client announced. Empty
// values fall back to DefaultFormat.
func ParseFormat(encoding, rate string) (Format, error) {
	f := DefaultFormat()

	switch Encoding(encoding) {
	case "", EncodingLinear16:
	case EncodingMulaw:
		f.Encoding = EncodingMulaw
	default:
		return Format{}, fmt.Errorf("unsupported audio encoding %q", encoding)
	}

	if rate != "" {
		n, err := strconv.Atoi(rate)
		if err != nil || n < 8000 || n > 48000 {
			return Format{}, fmt.Errorf("unsupported sample rate %q", rate)
		}
		f.SampleRate = n
	}
	return f, nil
}

// Converter turns client frames into 16 kHz linear16 for the engine. It
// carries a trailing odd byte over to the next linear16 frame. Not safe for
// concurrent use.
type Converter struct {
	format Format
	carry  []byte
}

// NewConverter creates a converter for the given client format
func NewConverter(format Format) *Converter {
	return &Converter{format: format}
}

// Passthrough reports whether frames are forwarded unchanged
func (c *Converter) Passthrough() bool {
	return c.format == DefaultFormat()
}

// Convert returns the frame as engine-ready linear16. The result may be empty
// when a single byte is held back for the next frame.
func (c *Converter) Convert(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	var samples []int16
	switch c.format.Encoding {
	case EncodingMulaw:
		samples = make([]int16, len(frame))
		for i, b := range frame {
			samples[i] = mulawToLinear(b)
		}
	default:
		if len(c.carry) > 0 {
			frame = append(c.carry, frame...)
			c.carry = nil
		}
		if len(frame)%2 != 0 {
			c.carry = []byte{frame[len(frame)-1]}
			frame = frame[:len(frame)-1]
		}
		if c.Passthrough() {
			return frame, nil
		}
		samples = decodeLinear16(frame)
	}

	samples = resample(samples, c.format.SampleRate, EngineSampleRate)
	return encodeLinear16(samples), nil
}

func decodeLinear16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

func encodeLinear16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// resample performs linear interpolation resampling
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	output := make([]int16, len(samples)*outputRate/inputRate)

	for i := range output {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}
	return output
}

// mulawToLinear decodes one G.711 μ-law byte
func mulawToLinear(mulawByte byte) int16 {
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := step - 33

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
