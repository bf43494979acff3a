package compiler

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/flatfilter/domainhash"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/internal/conv"
)

// NoToken is the filter map key of rules without tokens. Matchers must
// always look it up.
const NoToken uint64 = 0

// ErrNilList is returned by Compile for a nil list.
var ErrNilList = errors.New("compiler: nil list")

// Compile builds a checksummed blob from list. The blob passes
// format.Verify with default options.
func Compile(list *List) ([]byte, error) {
	if list == nil {
		return nil, ErrNilList
	}
	if _, err := conv.IntToUint32(len(list.Filters)); err != nil {
		return nil, fmt.Errorf("compiler: %d filters: %w", len(list.Filters), err)
	}

	domains := newDomainTable()
	for i := range list.Filters {
		domains.addAll(list.Filters[i].Domains)
		domains.addAll(list.Filters[i].NotDomains)
	}

	b := format.NewBuilder(estimateSize(list))
	uniqueDomains := b.CreateU64Vector(domains.hashes)

	refs := make([]format.Ref, len(list.Filters))
	for i := range list.Filters {
		f := &list.Filters[i]
		refs[i] = b.CreateNetworkFilter(format.NetworkFilterFields{
			Mask:          f.Mask,
			OptDomains:    optVector(b, domains.positions(f.Domains)),
			OptNotDomains: optVector(b, domains.positions(f.NotDomains)),
			Pattern:       optString(b, f.Pattern),
			Hostname:      optString(b, f.Hostname),
			ID:            ComputeFilterID(f),
			RawLine:       optString(b, f.RawLine),
		})
	}
	filters := b.CreateTableVector(refs)

	keys, values := buildFilterMap(list.Filters)
	root := b.CreateFilterData(format.FilterDataFields{
		UniqueDomainsHashes: uniqueDomains,
		NetworkFilters:      filters,
		FilterMapIndex:      b.CreateU64Vector(keys),
		FilterMapValues:     b.CreateU32Vector(values),
		ListName:            optString(b, list.Name),
		Generation:          list.Generation,
	})
	return b.Finish(root), nil
}

func optString(b *format.Builder, s string) format.Ref {
	if s == "" {
		return 0
	}
	return b.CreateString(s)
}

func optVector(b *format.Builder, v []uint32) format.Ref {
	if len(v) == 0 {
		return 0
	}
	return b.CreateU32Vector(v)
}

func estimateSize(list *List) int {
	n := format.HeaderSize + 64
	for i := range list.Filters {
		f := &list.Filters[i]
		n += 64 + len(f.Pattern) + len(f.Hostname) + len(f.RawLine) +
			4*(len(f.Domains)+len(f.NotDomains)) + 12*len(f.Tokens)
	}
	return n
}

// domainTable assigns positions to domain hashes in first-seen order.
type domainTable struct {
	hashes []uint64
	index  map[uint64]uint32
}

func newDomainTable() *domainTable {
	return &domainTable{index: make(map[uint64]uint32)}
}

func (d *domainTable) addAll(names []string) {
	for _, name := range names {
		h := domainhash.Fast(name)
		if _, ok := d.index[h]; ok {
			continue
		}
		d.index[h] = conv.MustUint32(len(d.hashes))
		d.hashes = append(d.hashes, h)
	}
}

// positions returns the sorted, deduplicated positions of names.
func (d *domainTable) positions(names []string) []uint32 {
	if len(names) == 0 {
		return nil
	}
	out := make([]uint32, 0, len(names))
	for _, name := range names {
		out = append(out, d.index[domainhash.Fast(name)])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// buildFilterMap files every filter under its rarest token; ties go to the
// token listed first. Filters without tokens go under NoToken. The result
// is sorted by key and stable within a key.
func buildFilterMap(filters []Filter) ([]uint64, []uint32) {
	histogram := make(map[uint64]int)
	for i := range filters {
		for _, tok := range uniqueTokens(filters[i].Tokens) {
			histogram[tok]++
		}
	}

	type entry struct {
		token uint64
		pos   uint32
	}
	entries := make([]entry, len(filters))
	for i := range filters {
		best, bestCount := NoToken, math.MaxInt
		for _, tok := range filters[i].Tokens {
			if c := histogram[tok]; c < bestCount {
				best, bestCount = tok, c
			}
		}
		entries[i] = entry{token: best, pos: conv.MustUint32(i)}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.token < b.token:
			return -1
		case a.token > b.token:
			return 1
		}
		return 0
	})

	keys := make([]uint64, len(entries))
	values := make([]uint32, len(entries))
	for i, e := range entries {
		keys[i], values[i] = e.token, e.pos
	}
	return keys, values
}

func uniqueTokens(tokens []uint64) []uint64 {
	if len(tokens) < 2 {
		return tokens
	}
	out := slices.Clone(tokens)
	slices.Sort(out)
	return slices.Compact(out)
}

func uniqueHashes(names []string) []uint64 {
	if len(names) == 0 {
		return nil
	}
	out := make([]uint64, len(names))
	for i, name := range names {
		out[i] = domainhash.Fast(name)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
