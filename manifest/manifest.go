// Package manifest reads and writes the CURRENT pointer that names the
// compiled filter blob a deployment should serve.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/flatfilter/blobstore"
	"github.com/hupe1980/flatfilter/codec"
	"github.com/hupe1980/flatfilter/internal/hash"
)

// CurrentVersion is the pointer record format version.
const CurrentVersion = 1

var (
	// ErrNoCurrent is returned by Load when nothing has been published yet.
	ErrNoCurrent = errors.New("manifest: no CURRENT pointer")
	// ErrMismatch is returned by Check when blob bytes do not match the
	// pointer.
	ErrMismatch = errors.New("manifest: blob does not match pointer")
)

// Pointer describes one published generation.
type Pointer struct {
	Version     int       `json:"version"`
	ID          uint64    `json:"id"`
	Blob        string    `json:"blob"`
	ListName    string    `json:"list_name,omitempty"`
	Generation  uint64    `json:"generation"`
	Size        int64     `json:"size"`     // stored (possibly compressed) size
	RawSize     int64     `json:"raw_size"` // verified blob size
	CRC32C      uint32    `json:"crc32c"`   // over the stored bytes
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
}

// Check validates stored blob bytes against the pointer.
func (p *Pointer) Check(data []byte) error {
	if int64(len(data)) != p.Size {
		return fmt.Errorf("%w: %s: size %d, want %d", ErrMismatch, p.Blob, len(data), p.Size)
	}
	if sum := hash.CRC32C(data); sum != p.CRC32C {
		return fmt.Errorf("%w: %s: crc32c %08x, want %08x", ErrMismatch, p.Blob, sum, p.CRC32C)
	}
	return nil
}

// Options configures a Store.
type Options struct {
	// Codec encodes pointer records. Default: codec.Default.
	Codec codec.Codec
	// Now stamps CreatedAt. Default: time.Now.
	Now func() time.Time
}

// Store manages the CURRENT pointer of one blob store.
type Store struct {
	blobs blobstore.BlobStore
	codec codec.Codec
	now   func() time.Time
	mu    sync.Mutex
}

// NewStore creates a pointer store on top of blobs.
func NewStore(blobs blobstore.BlobStore, optFns ...func(o *Options)) *Store {
	opts := Options{
		Codec: codec.Default,
		Now:   time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{blobs: blobs, codec: opts.Codec, now: opts.Now}
}

// Load reads the current pointer.
func (s *Store) Load(ctx context.Context) (*Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Pointer, error) {
	b, err := s.blobs.Open(ctx, blobstore.CurrentName)
	if blobstore.IsNotFound(err) {
		return nil, ErrNoCurrent
	}
	if err != nil {
		return nil, err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, err
	}

	var p Pointer
	if err := s.codec.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("manifest: decode pointer: %w", err)
	}
	if p.Version != CurrentVersion {
		return nil, fmt.Errorf("manifest: unsupported pointer version: %d (expected %d)", p.Version, CurrentVersion)
	}
	if p.Blob == "" {
		return nil, errors.New("manifest: pointer names no blob")
	}
	return &p, nil
}

// Save publishes p as the new CURRENT. It assigns Version, ID (previous
// ID + 1) and CreatedAt when unset.
func (s *Store) Save(ctx context.Context, p *Pointer) error {
	if p.Blob == "" {
		return errors.New("manifest: pointer names no blob")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(ctx)
	switch {
	case errors.Is(err, ErrNoCurrent):
		p.ID = 1
	case err != nil:
		return err
	default:
		p.ID = prev.ID + 1
	}
	p.Version = CurrentVersion
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	data, err := s.codec.Marshal(p)
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, blobstore.CurrentName, data)
}
