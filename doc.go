// Package flatfilter serves compiled adblock filter lists.
//
// A list is compiled once (package compiler) into a flat, checksummed blob
// and published to a blob store together with a CURRENT pointer. An Engine
// loads the blob named by CURRENT, verifies it in a single pass (package
// format) and exposes it as an immutable *filterdata.Context that any
// number of matchers read without locks.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./lists")
//
//	eng, err := flatfilter.Open(ctx, store, flatfilter.WithLogLevel(slog.LevelInfo))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	eng.Watch(ctx, 30*time.Second) // pick up new generations
//
//	fdc := eng.Current()
//	for _, f := range fdc.FilterMap().Get(token) {
//	    if fdc.DomainsMatch(f, domainhash.HostnameHashes(host)) {
//	        // ...
//	    }
//	}
//
// # Generations
//
// Every successful load swaps the whole generation atomically. A load that
// fails at any stage (open, read, checksum, decompression, verification)
// leaves the previous generation in place. Before the first successful
// load, Current returns an empty generation, never nil.
//
// # Storage
//
// Any blobstore.BlobStore works: LocalStore (mmap), MemoryStore, S3
// (blobstore/s3, optionally with a DynamoDB commit pointer) and MinIO
// (blobstore/minio). WithBlockCache puts an in-memory block cache in front
// of remote stores.
package flatfilter
