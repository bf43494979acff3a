package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm inside a compression envelope.
type Compression uint8

const (
	// CompressionNone stores the blob as is inside the envelope.
	CompressionNone Compression = 0
	// CompressionLZ4 is LZ4 block compression (fast decode).
	CompressionLZ4 Compression = 1
	// CompressionZstd is Zstandard (better ratio).
	CompressionZstd Compression = 2
	// CompressionSnappy is Snappy block compression.
	CompressionSnappy Compression = 3
)

// Envelope layout: magic "AFBZ" | type u8 | 3 pad bytes | raw size u64.
const (
	envelopeMagic      = 0x5A424641 // "AFBZ" little-endian
	EnvelopeHeaderSize = 16
)

var (
	// ErrUnknownCompression is returned for an unknown algorithm.
	ErrUnknownCompression = errors.New("codec: unknown compression")
	// ErrCorruptEnvelope is returned when an envelope cannot be decoded.
	ErrCorruptEnvelope = errors.New("codec: corrupt compression envelope")
	// ErrTooLarge is returned when the declared raw size exceeds the limit.
	ErrTooLarge = errors.New("codec: decompressed size exceeds limit")
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name produced by String back to its value.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(DefaultMaxSize),
	)
}

// IsEnveloped reports whether data starts with a compression envelope.
func IsEnveloped(data []byte) bool {
	return len(data) >= EnvelopeHeaderSize && binary.LittleEndian.Uint32(data) == envelopeMagic
}

// EnvelopeCompression returns the algorithm of an enveloped blob. ok is
// false for data without an envelope.
func EnvelopeCompression(data []byte) (c Compression, ok bool) {
	if !IsEnveloped(data) {
		return 0, false
	}
	return Compression(data[4]), true
}

// Compress wraps data in an envelope compressed with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	out := make([]byte, EnvelopeHeaderSize, EnvelopeHeaderSize+len(data)/2)
	binary.LittleEndian.PutUint32(out[0:], envelopeMagic)
	out[4] = byte(c)
	binary.LittleEndian.PutUint64(out[8:], uint64(len(data)))

	switch c {
	case CompressionNone:
		return append(out, data...), nil
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		out = append(out, make([]byte, bound)...)
		n, err := lz4.CompressBlock(data, out[EnvelopeHeaderSize:], nil)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4: %w", err)
		}
		if n == 0 && len(data) > 0 {
			// Incompressible input.
			out[4] = byte(CompressionNone)
			return append(out[:EnvelopeHeaderSize], data...), nil
		}
		return out[:EnvelopeHeaderSize+n], nil
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("codec: zstd: %w", err)
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, out), nil
	case CompressionSnappy:
		return append(out, snappy.Encode(nil, data)...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}
}

// DefaultMaxSize bounds the raw size of an envelope when Decompress is
// called without a limit.
const DefaultMaxSize = 1 << 30

// Worst-case expansion of one compressed byte. An lz4 match length byte
// adds at most 255 bytes of output; a snappy 3-byte copy emits at most 64.
const (
	lz4MaxExpansion    = 255
	snappyMaxExpansion = 32
)

// Decompress unwraps an envelope. Data without the envelope magic is
// returned unchanged. maxSize bounds the declared raw size; 0 selects
// DefaultMaxSize. No decoder produces or allocates more than the declared
// raw size.
func Decompress(data []byte, maxSize uint64) ([]byte, error) {
	if !IsEnveloped(data) {
		return data, nil
	}
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	c := Compression(data[4])
	rawSize := binary.LittleEndian.Uint64(data[8:])
	if rawSize > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, rawSize, maxSize)
	}
	payload := data[EnvelopeHeaderSize:]

	var (
		out []byte
		err error
	)
	switch c {
	case CompressionNone:
		out = payload
	case CompressionLZ4:
		if rawSize > uint64(len(payload))*lz4MaxExpansion {
			return nil, fmt.Errorf("%w: lz4: raw size %d from %d bytes", ErrCorruptEnvelope, rawSize, len(payload))
		}
		out = make([]byte, rawSize)
		if rawSize > 0 {
			var n int
			n, err = lz4.UncompressBlock(payload, out)
			out = out[:max(n, 0)]
		}
	case CompressionZstd:
		out, err = decodeZstd(payload, rawSize)
	case CompressionSnappy:
		if rawSize > uint64(len(payload))*snappyMaxExpansion {
			return nil, fmt.Errorf("%w: snappy: raw size %d from %d bytes", ErrCorruptEnvelope, rawSize, len(payload))
		}
		var n int
		n, err = snappy.DecodedLen(payload)
		if err == nil && uint64(n) != rawSize {
			return nil, fmt.Errorf("%w: snappy length %d, header %d", ErrCorruptEnvelope, n, rawSize)
		}
		if err == nil {
			out, err = snappy.Decode(nil, payload)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptEnvelope, c, err)
	}
	if uint64(len(out)) != rawSize {
		return nil, fmt.Errorf("%w: %s: got %d bytes, header %d", ErrCorruptEnvelope, c, len(out), rawSize)
	}
	return out, nil
}

// decodeZstd streams payload and stops one byte past rawSize, so a frame
// that expands beyond its header is caught without decoding all of it.
func decodeZstd(payload []byte, rawSize uint64) ([]byte, error) {
	if len(payload) == 0 && rawSize == 0 {
		// EncodeAll writes no frame for empty input.
		return []byte{}, nil
	}
	var h zstd.Header
	if err := h.Decode(payload); err != nil {
		return nil, err
	}
	if h.HasFCS && h.FrameContentSize != rawSize {
		return nil, fmt.Errorf("frame content size %d, header %d", h.FrameContentSize, rawSize)
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = dec.Reset(nil)
		zstdDecoderPool.Put(dec)
	}()
	if err := dec.Reset(bytes.NewReader(payload)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(min(rawSize, uint64(len(payload))*8)) + 1)
	if _, err := buf.ReadFrom(io.LimitReader(dec, int64(rawSize)+1)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
