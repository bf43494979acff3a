package container

import (
	"cmp"
	"fmt"
	"sort"
)

// Indexed is an array-like collection with by-value element access.
//
// Get must panic when i is outside [0, Len()). Positions handed to Get by the
// algorithms in this package are always in range, so a panic indicates a bug
// in the caller, not bad input data.
type Indexed[T any] interface {
	Len() int
	Get(i int) T
}

// Sorted is an Indexed collection whose elements are non-decreasing.
type Sorted[T any] interface {
	Indexed[T]

	// PartitionPoint returns the first position for which pred is false,
	// assuming pred holds for a prefix of the collection and fails for the
	// rest.
	PartitionPoint(pred func(T) bool) int
}

// Slice is the native backing for Indexed and Sorted.
type Slice[T any] []T

// Len returns the number of elements.
func (s Slice[T]) Len() int { return len(s) }

// Get returns the element at position i.
func (s Slice[T]) Get(i int) T { return s[i] }

// PartitionPoint delegates to sort.Search.
func (s Slice[T]) PartitionPoint(pred func(T) bool) int {
	return sort.Search(len(s), func(i int) bool { return !pred(s[i]) })
}

// PartitionPoint is the backing-agnostic binary search over [0, c.Len()).
//
// It returns p such that pred(c.Get(i)) holds for every i < p and fails for
// every i >= p. When pred is not monotonic the result is some position in
// [0, c.Len()]; the search still terminates after O(log n) steps.
func PartitionPoint[T any, C Indexed[T]](c C, pred func(T) bool) int {
	left, right := 0, c.Len()
	for left < right {
		mid := int(uint(left+right) >> 1)
		if pred(c.Get(mid)) {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// LowerBound returns the first position whose element is >= key.
func LowerBound[T cmp.Ordered, C Sorted[T]](c C, key T) int {
	AssertSorted[T](c)
	return c.PartitionPoint(func(x T) bool { return x < key })
}

// UpperBound returns the first position whose element is > key.
func UpperBound[T cmp.Ordered, C Sorted[T]](c C, key T) int {
	AssertSorted[T](c)
	return c.PartitionPoint(func(x T) bool { return x <= key })
}

// EqualRange returns the half-open range [lo, hi) of elements equal to key.
// lo == hi when key is absent.
func EqualRange[T cmp.Ordered, C Sorted[T]](c C, key T) (lo, hi int) {
	AssertSorted[T](c)
	lo = c.PartitionPoint(func(x T) bool { return x < key })
	if lo == c.Len() || c.Get(lo) != key {
		return lo, lo
	}
	hi = lo + PartitionPoint[T](window[T, C]{c: c, off: lo}, func(x T) bool { return x <= key })
	return lo, hi
}

// Contains reports whether key is present.
func Contains[T cmp.Ordered, C Sorted[T]](c C, key T) bool {
	i := LowerBound[T](c, key)
	return i < c.Len() && c.Get(i) == key
}

// IsSorted reports whether the elements of c are non-decreasing.
func IsSorted[T cmp.Ordered, C Indexed[T]](c C) bool {
	n := c.Len()
	if n < 2 {
		return true
	}
	prev := c.Get(0)
	for i := 1; i < n; i++ {
		cur := c.Get(i)
		if cur < prev {
			return false
		}
		prev = cur
	}
	return true
}

// AssertSorted panics if c is not sorted. It only checks in builds with
// the flatfilter_debug tag.
func AssertSorted[T cmp.Ordered, C Indexed[T]](c C) {
	if !debugChecks {
		return
	}
	if !IsSorted[T](c) {
		panic(fmt.Sprintf("container: %d elements are not sorted", c.Len()))
	}
}

// window is the suffix of c starting at off.
type window[T any, C Indexed[T]] struct {
	c   C
	off int
}

func (w window[T, C]) Len() int { return w.c.Len() - w.off }

func (w window[T, C]) Get(i int) T {
	if i < 0 || i >= w.Len() {
		panic(fmt.Sprintf("container: index %d out of range [0, %d)", i, w.Len()))
	}
	return w.c.Get(w.off + i)
}
