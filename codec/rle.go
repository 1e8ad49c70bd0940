package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

const (
	rleHeaderLength = 64
	rleMaxSegments  = 15
)

// RLECodec implements RLE Lossless (PS3.5 Annex G). Each byte plane of each
// sample is a separate PackBits segment, most significant byte first.
type RLECodec struct{}

// NewRLECodec returns the RLE Lossless codec.
func NewRLECodec() *RLECodec {
	return &RLECodec{}
}

func (c *RLECodec) TransferSyntaxUID() string { return types.RLELossless }

func (c *RLECodec) check(info FrameInfo) (bytesPerSample int, err error) {
	if info.BitsAllocated%8 != 0 || info.BitsAllocated == 0 {
		return 0, fmt.Errorf("bits allocated %d is not a whole number of bytes", info.BitsAllocated)
	}
	bytesPerSample = info.BitsAllocated / 8
	if info.SamplesPerPixel < 1 || info.SamplesPerPixel*bytesPerSample > rleMaxSegments {
		return 0, fmt.Errorf("%d samples of %d bits need more than %d segments",
			info.SamplesPerPixel, info.BitsAllocated, rleMaxSegments)
	}
	if info.Rows <= 0 || info.Columns <= 0 {
		return 0, fmt.Errorf("invalid frame size %dx%d", info.Columns, info.Rows)
	}
	return bytesPerSample, nil
}

// sampleOffset returns where byte b of sample s of pixel p lives in a native frame.
func sampleOffset(info FrameInfo, bytesPerSample, pixels, p, s, b int) int {
	if info.PlanarConfiguration == 1 {
		return (s*pixels+p)*bytesPerSample + b
	}
	return (p*info.SamplesPerPixel+s)*bytesPerSample + b
}

func (c *RLECodec) Encode(native []byte, info FrameInfo) ([]byte, error) {
	bps, err := c.check(info)
	if err != nil {
		return nil, dicomerrors.NewCodecError(types.RLELossless, "encode", err)
	}
	pixels := info.Rows * info.Columns
	if len(native) < info.NativeLength() {
		return nil, dicomerrors.NewCodecError(types.RLELossless, "encode",
			fmt.Errorf("frame holds %d bytes, need %d", len(native), info.NativeLength()))
	}

	numSegments := info.SamplesPerPixel * bps
	header := make([]byte, rleHeaderLength)
	binary.LittleEndian.PutUint32(header, uint32(numSegments))

	var body bytes.Buffer
	plane := make([]byte, pixels)
	for s := 0; s < info.SamplesPerPixel; s++ {
		for i := 0; i < bps; i++ {
			b := bps - 1 - i // most significant byte first
			for p := 0; p < pixels; p++ {
				plane[p] = native[sampleOffset(info, bps, pixels, p, s, b)]
			}
			seg := s*bps + i
			binary.LittleEndian.PutUint32(header[4+4*seg:], uint32(rleHeaderLength+body.Len()))
			for row := 0; row < info.Rows; row++ {
				body.Write(encodePackBits(plane[row*info.Columns : (row+1)*info.Columns]))
			}
			if body.Len()%2 == 1 {
				body.WriteByte(0)
			}
		}
	}
	return append(header, body.Bytes()...), nil
}

func (c *RLECodec) Decode(encoded []byte, info FrameInfo) ([]byte, error) {
	bps, err := c.check(info)
	if err != nil {
		return nil, dicomerrors.NewCodecError(types.RLELossless, "decode", err)
	}
	if len(encoded) < rleHeaderLength {
		return nil, dicomerrors.NewCodecError(types.RLELossless, "decode", errors.New("missing RLE header"))
	}
	numSegments := int(binary.LittleEndian.Uint32(encoded))
	if numSegments != info.SamplesPerPixel*bps {
		return nil, dicomerrors.NewCodecError(types.RLELossless, "decode",
			fmt.Errorf("header declares %d segments, expected %d", numSegments, info.SamplesPerPixel*bps))
	}
	offsets := make([]int, numSegments+1)
	for i := 0; i < numSegments; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(encoded[4+4*i:]))
	}
	offsets[numSegments] = len(encoded)

	pixels := info.Rows * info.Columns
	native := make([]byte, info.NativeLength())
	for seg := 0; seg < numSegments; seg++ {
		start, end := offsets[seg], offsets[seg+1]
		if start < rleHeaderLength || start > end || end > len(encoded) {
			return nil, dicomerrors.NewCodecError(types.RLELossless, "decode",
				fmt.Errorf("segment %d has invalid bounds [%d,%d)", seg, start, end))
		}
		plane, err := decodePackBits(encoded[start:end], pixels)
		if err != nil {
			return nil, dicomerrors.NewCodecError(types.RLELossless, "decode", fmt.Errorf("segment %d: %w", seg, err))
		}
		if len(plane) < pixels {
			return nil, dicomerrors.NewCodecError(types.RLELossless, "decode",
				fmt.Errorf("segment %d decoded %d bytes, expected %d", seg, len(plane), pixels))
		}
		s, i := seg/bps, seg%bps
		b := bps - 1 - i
		for p := 0; p < pixels; p++ {
			native[sampleOffset(info, bps, pixels, p, s, b)] = plane[p]
		}
	}
	return native, nil
}

// encodePackBits compresses one row. Runs of two or more equal bytes are
// replicated, everything else is copied as literals of at most 128 bytes.
func encodePackBits(data []byte) []byte {
	var buf bytes.Buffer
	i := 0
	for i < len(data) {
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}
		if run > 1 {
			buf.WriteByte(byte(int8(1 - run)))
			buf.WriteByte(data[i])
			i += run
			continue
		}

		start := i
		n := 1
		for i+n < len(data) && n < 128 {
			if i+n+1 < len(data) && data[i+n] == data[i+n+1] {
				break
			}
			n++
		}
		buf.WriteByte(byte(n - 1))
		buf.Write(data[start : start+n])
		i += n
	}
	return buf.Bytes()
}

// decodePackBits expands data until expected bytes have been produced.
func decodePackBits(data []byte, expected int) ([]byte, error) {
	out := make([]byte, 0, expected)
	i := 0
	for i < len(data) && len(out) < expected {
		n := int8(data[i])
		i++
		switch {
		case n == -128:
			// no-op
		case n >= 0:
			count := int(n) + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("literal run of %d truncated at %d", count, i)
			}
			out = append(out, data[i:i+count]...)
			i += count
		default:
			count := 1 - int(n)
			if i >= len(data) {
				return nil, errors.New("replicate run truncated")
			}
			for k := 0; k < count; k++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}
