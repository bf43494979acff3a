package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flatfilter/internal/cache"
)

func storeContract(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Open(ctx, "missing")
	assert.True(t, IsNotFound(err), "got %v", err)

	require.NoError(t, s.Put(ctx, "filters-a.afb", []byte("hello blob")))
	require.NoError(t, s.Put(ctx, "CURRENT", []byte(`{"blob":"filters-a.afb"}`)))

	w, err := s.Create(ctx, "filters-b.afb")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	b, err := s.Open(ctx, "filters-a.afb")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "blob", string(buf[:n]))

	n, err = b.ReadAt(ctx, make([]byte, 8), 6)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)

	rc, err := b.ReadRange(ctx, 0, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(got))

	all, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "hello blob", string(all))
	require.NoError(t, b.Close())

	names, err := s.List(ctx, "filters-")
	require.NoError(t, err)
	assert.Equal(t, []string{"filters-a.afb", "filters-b.afb"}, names)

	require.NoError(t, s.Delete(ctx, "filters-a.afb"))
	require.NoError(t, s.Delete(ctx, "filters-a.afb"))
	_, err = s.Open(ctx, "filters-a.afb")
	assert.True(t, IsNotFound(err))

	b, err = s.Open(ctx, "filters-b.afb")
	require.NoError(t, err)
	all, err = ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(all))
	require.NoError(t, b.Close())
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_Isolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "x", data))
	data[0] = 'z'

	b, err := s.Open(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "x", []byte("new")))

	got, err := b.(Mappable).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStore(t *testing.T) {
	storeContract(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_Mappable(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "blob", []byte("mapped bytes")))

	b, err := s.Open(ctx, "blob")
	require.NoError(t, err)
	m, ok := b.(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped bytes", string(data))
	require.NoError(t, b.Close())

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_EmptyAndMissingDir(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "nested"))
	ctx := context.Background()

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Put(ctx, "empty", nil))
	b, err := s.Open(ctx, "empty")
	require.NoError(t, err)
	all, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, all)
	require.NoError(t, b.Close())
}

func TestLocalStore_CanceledContext(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Open(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Put(ctx, "x", []byte("y")), context.Canceled)
}

func TestCachingStore(t *testing.T) {
	storeContract(t, NewCachingStore(NewMemoryStore(), cache.NewLRUBlockCache(1<<20, nil), 4))
}

type countingStore struct {
	*MemoryStore
	reads atomic.Int64
}

type countingBlob struct {
	Blob
	reads *atomic.Int64
}

func (c *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := c.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, reads: &c.reads}, nil
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	return b.Blob.ReadAt(ctx, p, off)
}

func TestCachingStore_ServesFromCache(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	lru := cache.NewLRUBlockCache(1<<20, nil)
	s := NewCachingStore(inner, lru, 8)
	ctx := context.Background()

	data := bytes.Repeat([]byte("0123456789"), 10)
	require.NoError(t, s.Put(ctx, "blob", data))

	b, err := s.Open(ctx, "blob")
	require.NoError(t, err)

	buf := make([]byte, 30)
	n, err := b.ReadAt(ctx, buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, data[5:35], buf)
	assert.Equal(t, int64(1), inner.reads.Load(), "one contiguous run, one backend read")

	n, err = b.ReadAt(ctx, buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, int64(1), inner.reads.Load())

	// Tail block is short.
	tail := make([]byte, 10)
	n, err = b.ReadAt(ctx, tail, 95)
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data[95:], tail[:n])

	all, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, data, all)

	require.NoError(t, s.Put(ctx, "blob", []byte("replaced")))
	_, ok := lru.Get(ctx, cache.Key{Path: "blob", Block: 0})
	assert.False(t, ok)
}

func TestCachingStore_CurrentNotCached(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	lru := cache.NewLRUBlockCache(1<<20, nil)
	s := NewCachingStore(inner, lru, 8)
	ctx := context.Background()

	require.NoError(t, inner.Put(ctx, CurrentName, []byte(`{"id":1}`)))
	b, err := s.Open(ctx, CurrentName)
	require.NoError(t, err)
	data, err := ReadAll(ctx, b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, `{"id":1}`, string(data))

	// Rewritten behind the cache's back, same size.
	require.NoError(t, inner.Put(ctx, CurrentName, []byte(`{"id":2}`)))
	b, err = s.Open(ctx, CurrentName)
	require.NoError(t, err)
	data, err = ReadAll(ctx, b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, `{"id":2}`, string(data))

	_, ok := lru.Get(ctx, cache.Key{Path: CurrentName, Block: 0})
	assert.False(t, ok)
}
