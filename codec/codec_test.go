package codec

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pointer struct {
	Blob       string `json:"blob"`
	Generation uint64 `json:"generation"`
}

func TestCodecs_Interop(t *testing.T) {
	in := pointer{Blob: "filters-1.afb", Generation: 7}

	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())

		data, err := c.Marshal(in)
		require.NoError(t, err)

		// Both codecs read each other's output.
		for _, other := range []Codec{JSON{}, GoJSON{}} {
			var out pointer
			require.NoError(t, other.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		}
	}

	_, ok := ByName("gob")
	assert.False(t, ok)
}

func TestGoJSON_Append(t *testing.T) {
	out, err := GoJSON{}.Append([]byte("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, "x1", string(out))
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}

func TestCompress_RoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"small":      []byte("ADFB"),
		"repetitive": bytes.Repeat([]byte("||ads.example.com^$third-party\n"), 512),
	}
	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(i*7919 + i>>3)
	}
	inputs["mixed"] = random

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd, CompressionSnappy} {
		for name, data := range inputs {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				enc, err := Compress(data, c)
				require.NoError(t, err)
				assert.True(t, IsEnveloped(enc))

				dec, err := Decompress(enc, 0)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(dec))
				assert.True(t, bytes.Equal(data, dec))
			})
		}
	}
}

func TestCompress_ShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("example.com"), 1000)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd, CompressionSnappy} {
		enc, err := Compress(data, c)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(data)/4, c.String())
	}
}

func TestDecompress_PassThrough(t *testing.T) {
	raw := []byte("ADFB\x01\x00\x00\x00 not enveloped")
	out, err := Decompress(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestDecompress_Errors(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 100)

	enc, err := Compress(data, CompressionZstd)
	require.NoError(t, err)

	_, err = Decompress(enc, 10)
	assert.ErrorIs(t, err, ErrTooLarge)

	corrupt := bytes.Clone(enc)
	corrupt[8]++ // raw size
	_, err = Decompress(corrupt, 0)
	assert.ErrorIs(t, err, ErrCorruptEnvelope)

	unknown := bytes.Clone(enc)
	unknown[4] = 99
	_, err = Decompress(unknown, 0)
	assert.ErrorIs(t, err, ErrUnknownCompression)

	_, err = Compress(data, Compression(42))
	assert.ErrorIs(t, err, ErrUnknownCompression)

	for _, c := range []Compression{CompressionLZ4, CompressionSnappy} {
		enc, err := Compress(data, c)
		require.NoError(t, err)
		truncated := enc[:len(enc)-5]
		_, err = Decompress(truncated, 0)
		assert.ErrorIs(t, err, ErrCorruptEnvelope, c.String())
	}
}

// envelope wraps an already compressed payload under a chosen raw size.
func envelope(c Compression, rawSize uint64, payload []byte) []byte {
	out := make([]byte, EnvelopeHeaderSize, EnvelopeHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out, envelopeMagic)
	out[4] = byte(c)
	binary.LittleEndian.PutUint64(out[8:], rawSize)
	return append(out, payload...)
}

func TestDecompress_UnderstatedRawSize(t *testing.T) {
	zeros := make([]byte, 32<<20)

	t.Run("zstd frame with content size", func(t *testing.T) {
		enc, err := Compress(zeros, CompressionZstd)
		require.NoError(t, err)
		_, err = Decompress(envelope(CompressionZstd, 1024, enc[EnvelopeHeaderSize:]), 4096)
		assert.ErrorIs(t, err, ErrCorruptEnvelope)
	})

	t.Run("zstd stream without content size", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf, zstd.WithWindowSize(1<<20))
		require.NoError(t, err)
		_, err = w.Write(zeros)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		env := envelope(CompressionZstd, 1024, buf.Bytes())

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		_, err = Decompress(env, 4096)
		runtime.ReadMemStats(&after)

		assert.ErrorIs(t, err, ErrCorruptEnvelope)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(len(zeros)/2), "decoding stops at the declared size")
	})

	t.Run("zstd stream honest", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(zeros[:5000])
		require.NoError(t, err)
		require.NoError(t, w.Close())

		out, err := Decompress(envelope(CompressionZstd, 5000, buf.Bytes()), 0)
		require.NoError(t, err)
		assert.Equal(t, zeros[:5000], out)
	})
}

func TestDecompress_OverstatedRawSize(t *testing.T) {
	data := bytes.Repeat([]byte("flatfilter"), 100)

	for _, c := range []Compression{CompressionLZ4, CompressionSnappy} {
		enc, err := Compress(data, c)
		require.NoError(t, err)
		require.Equal(t, c, Compression(enc[4]), "input must compress")

		_, err = Decompress(envelope(c, 512<<20, enc[EnvelopeHeaderSize:]), 0)
		assert.ErrorIs(t, err, ErrCorruptEnvelope, c.String())
	}

	_, err := Decompress(envelope(CompressionLZ4, DefaultMaxSize+1, nil), 0)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd, CompressionSnappy} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
	assert.Equal(t, "compression(9)", Compression(9).String())
}
