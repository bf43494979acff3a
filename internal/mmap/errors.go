package mmap

import "errors"

var (
	// ErrClosed is returned by accessors of a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for files whose size cannot be mapped.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned for negative offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
	// ErrOutOfBounds is returned by Slice for ranges past the end.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)

// AccessPattern is a paging hint passed to Advise.
type AccessPattern int

const (
	// AccessDefault resets any previous hint.
	AccessDefault AccessPattern = iota
	// AccessSequential suits the single verification pass.
	AccessSequential
	// AccessRandom suits lookups after verification.
	AccessRandom
	// AccessWillNeed asks the kernel to read ahead.
	AccessWillNeed
)
