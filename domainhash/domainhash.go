// Package domainhash computes the 64-bit domain hashes stored in compiled
// filter blobs and the label hashes used to look a request hostname up in
// them.
package domainhash

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

const seed uint64 = 5381

// Fast returns the djb2-xor hash of s. Compiled blobs key every domain by
// this value, so it must not change between compiler and reader.
func Fast(s string) uint64 {
	h := seed
	for i := 0; i < len(s); i++ {
		h = h*33 ^ uint64(s[i])
	}
	return h
}

// Domain returns the registrable domain of hostname (eTLD+1). Hostnames
// without one, such as IP addresses, bare public suffixes or single
// labels, are their own domain.
func Domain(hostname string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return hostname
	}
	return d
}

// HostnameHashes returns the hashes of hostname and every parent domain
// down to its registrable domain, least specific first.
//
//	HostnameHashes("a.b.example.com")
//	// Fast("example.com"), Fast("b.example.com"), Fast("a.b.example.com")
func HostnameHashes(hostname string) []uint64 {
	hostname = strings.TrimSuffix(hostname, ".")
	if hostname == "" {
		return nil
	}
	domain := Domain(hostname)
	return labelHashes(hostname, len(hostname), len(hostname)-len(domain))
}

// EntityHashes returns the hashes used by entity-constrained rules
// ("example.*"): the label hashes of hostname with its public suffix
// stripped, followed by the hash of the public suffix. It returns nil when
// hostname has no public suffix.
func EntityHashes(hostname string) []uint64 {
	hostname = strings.TrimSuffix(hostname, ".")
	domain := Domain(hostname)
	dot := strings.IndexByte(domain, '.')
	if dot < 0 {
		return nil
	}
	suffix := domain[dot+1:]
	stripped := hostname[:len(hostname)-len(suffix)-1]

	hashes := labelHashes(stripped, len(stripped), len(stripped))
	return append(hashes, Fast(suffix))
}

// labelHashes hashes hostname[dot+1:end] for every dot before start, right
// to left, and finally hostname[:end].
func labelHashes(hostname string, end, start int) []uint64 {
	if end == 0 {
		return nil
	}
	hashes := make([]uint64, 0, strings.Count(hostname[:start], ".")+1)
	ptr := start
	for {
		dot := strings.LastIndexByte(hostname[:ptr], '.')
		if dot < 0 {
			break
		}
		ptr = dot
		hashes = append(hashes, Fast(hostname[dot+1:end]))
	}
	return append(hashes, Fast(hostname[:end]))
}
