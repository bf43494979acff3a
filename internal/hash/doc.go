// Package hash provides the integrity checksum used by compiled filter blobs.
//
// Every blob header carries a CRC32-Castagnoli checksum of everything after
// the header. The checksum is verified once, when the blob is turned into
// verified memory, and never again.
//
//	sum := hash.CRC32C(buf[16:])
//
// Go's crc32 package uses SSE4.2 / ARM CRC instructions when available.
package hash
