package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/flatfilter/blobstore"
	"github.com/hupe1980/flatfilter/codec"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/internal/hash"
	"github.com/hupe1980/flatfilter/manifest"
)

// BlobPrefix and BlobSuffix frame the names of published blobs.
const (
	BlobPrefix = "filters-"
	BlobSuffix = ".afb"
)

// PublishOptions configures Publish.
type PublishOptions struct {
	// Compression wraps the blob in a codec envelope. Default: zstd.
	Compression codec.Compression
	// Codec encodes the CURRENT pointer. Default: codec.Default.
	Codec codec.Codec
	// Name returns the blob name. Default: BlobPrefix + random UUID + BlobSuffix.
	Name func() string
}

// Publish verifies blob, writes it under a fresh name and then points
// CURRENT at it. Readers never observe a CURRENT naming a partial blob.
func Publish(ctx context.Context, store blobstore.BlobStore, blob []byte, optFns ...func(o *PublishOptions)) (*manifest.Pointer, error) {
	opts := PublishOptions{
		Compression: codec.CompressionZstd,
		Codec:       codec.Default,
		Name:        func() string { return BlobPrefix + uuid.NewString() + BlobSuffix },
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	mem, err := format.Verify(blob)
	if err != nil {
		return nil, fmt.Errorf("compiler: refusing to publish: %w", err)
	}
	root := mem.Root()

	stored, err := codec.Compress(blob, opts.Compression)
	if err != nil {
		return nil, err
	}

	name := opts.Name()
	if err := write(ctx, store, name, stored); err != nil {
		return nil, fmt.Errorf("compiler: write %s: %w", name, err)
	}

	p := &manifest.Pointer{
		Blob:        name,
		ListName:    root.ListName(),
		Generation:  root.Generation(),
		Size:        int64(len(stored)),
		RawSize:     int64(len(blob)),
		CRC32C:      hash.CRC32C(stored),
		Compression: opts.Compression.String(),
	}
	if err := manifest.NewStore(store, func(o *manifest.Options) { o.Codec = opts.Codec }).Save(ctx, p); err != nil {
		return nil, fmt.Errorf("compiler: commit %s: %w", name, err)
	}
	return p, nil
}

func write(ctx context.Context, store blobstore.BlobStore, name string, data []byte) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(blobstore.Abortable); ok {
			return errors.Join(err, a.Abort())
		}
		return errors.Join(err, w.Close())
	}
	if err := w.Sync(); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}
