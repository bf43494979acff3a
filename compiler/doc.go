// Package compiler turns parsed filter rules into the binary blob read by
// package format, and publishes blobs to a blob store.
//
// Parsing filter list text is out of scope: callers hand in Filter records
// that already carry their option mask, domain options and token hashes.
//
//	blob, err := compiler.Compile(&compiler.List{
//	    Name:       "easylist",
//	    Generation: 42,
//	    Filters:    filters,
//	})
//	if err != nil {
//	    return err
//	}
//	ptr, err := compiler.Publish(ctx, store, blob)
package compiler
