// Package container provides array-like views that work the same way over a
// native Go slice and over a vector decoded lazily from verified filter-blob
// memory.
//
// Indexed is the minimal capability: a length and a by-value element
// accessor. Sorted adds PartitionPoint, the binary-search primitive every
// range lookup in the engine is built on.
//
//	s := container.Slice[uint64]{5, 5, 9, 9, 9, 14}
//	s.PartitionPoint(func(x uint64) bool { return x < 9 }) // 2
//
//	lo, hi := container.EqualRange(root.FilterMapIndex(), token)
//
// Algorithms are written once against the interfaces and instantiated per
// backing through type parameters, so there is no interface dispatch on the
// hot path.
//
// # Sortedness
//
// Sorted vectors are a producer contract. Release builds trust it. Builds
// tagged flatfilter_debug assert the order before each ordered lookup.
package container
