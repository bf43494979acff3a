// Package format implements the binary layout of compiled filter blobs and
// the verified-memory wrapper that makes reading them safe.
//
// # Layout
//
// A blob is a little-endian, offset-based encoding in the style of
// FlatBuffers:
//
//	+--------+---------+-----------+---------+----------------------+
//	| magic  | version | root      | crc32c  | tables, vectors, ... |
//	| "ADFB" | u32     | u32 (abs) | u32     |                      |
//	+--------+---------+-----------+---------+----------------------+
//	0        4         8           12        16
//
// A table starts with an int32 distance to its vtable (vtable = table - d).
// The vtable holds its own size, the inline size of the table and one u16
// per field giving the field's byte offset inside the table (0 = absent).
// Reference fields (vectors, strings, tables) store an int32 offset relative
// to the field's own position. Vectors are a u32 length followed by the
// elements; strings are a u32 length, the bytes and a trailing NUL.
//
// # Verification
//
// Verify checks every structural property once, up front: header, checksum,
// every vtable, table, vector and string bound, required fields and the
// cross-references between the filter map and the filter vector. A
// *VerifiedMemory can only be obtained from Verify, and every accessor
// reachable from Root is infallible afterwards.
//
//	mem, err := format.Verify(blob)
//	if err != nil {
//	    var fe *format.FormatError
//	    errors.As(err, &fe) // fe.Kind, fe.Offset
//	}
//	hashes := mem.Root().UniqueDomainsHashes()
package format
