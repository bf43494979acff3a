package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flatfilter/blobstore"
	"github.com/hupe1980/flatfilter/codec"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/manifest"
)

func TestPublish(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	blob, err := Compile(testList())
	require.NoError(t, err)

	for _, c := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZstd, codec.CompressionSnappy} {
		t.Run(c.String(), func(t *testing.T) {
			ptr, err := Publish(ctx, store, blob, func(o *PublishOptions) { o.Compression = c })
			require.NoError(t, err)
			assert.Regexp(t, `^filters-[0-9a-f-]{36}\.afb$`, ptr.Blob)
			assert.Equal(t, "easylist", ptr.ListName)
			assert.Equal(t, uint64(42), ptr.Generation)
			assert.Equal(t, c.String(), ptr.Compression)
			assert.Equal(t, int64(len(blob)), ptr.RawSize)

			loaded, err := manifest.NewStore(store).Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, ptr.Blob, loaded.Blob)
			assert.Equal(t, ptr.ID, loaded.ID)

			b, err := store.Open(ctx, loaded.Blob)
			require.NoError(t, err)
			stored, err := blobstore.ReadAll(ctx, b)
			require.NoError(t, err)
			require.NoError(t, loaded.Check(stored))

			raw, err := codec.Decompress(stored, 0)
			require.NoError(t, err)
			assert.Equal(t, blob, raw)
			_, err = format.Verify(raw)
			require.NoError(t, err)
		})
	}

	names, err := store.List(ctx, BlobPrefix)
	require.NoError(t, err)
	assert.Len(t, names, 4)
}

func TestPublish_RejectsInvalidBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	blob, err := Compile(testList())
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = Publish(ctx, store, blob)
	require.ErrorIs(t, err, format.ErrChecksumMismatch)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPublish_CustomName(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	blob, err := Compile(&List{Name: "tiny"})
	require.NoError(t, err)

	ptr, err := Publish(ctx, store, blob, func(o *PublishOptions) {
		o.Name = func() string { return "filters-fixed.afb" }
		o.Codec = codec.JSON{}
	})
	require.NoError(t, err)
	assert.Equal(t, "filters-fixed.afb", ptr.Blob)
	assert.Equal(t, uint64(1), ptr.ID)
}
