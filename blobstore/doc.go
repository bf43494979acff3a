// Package blobstore abstracts where compiled filter blobs live.
//
// A store holds immutable blobs named filters-<id>.afb plus one small
// mutable blob, CURRENT, that names the generation to serve. Stores must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: one directory; reads are memory-mapped (Mappable)
//   - MemoryStore: in-process map, for tests and embedded lists
//   - CachingStore: block LRU in front of any other store
//   - s3.Store, s3.DDBCommitStore: Amazon S3, optionally with the CURRENT
//     pointer committed through DynamoDB
//   - minio.Store: MinIO and other S3-compatible servers
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs that can hand out their bytes without a copy implement Mappable;
// the engine uses it in zero-copy mode.
package blobstore
