package flatfilter

import (
	"errors"
	"fmt"

	"github.com/hupe1980/flatfilter/manifest"
)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("flatfilter: engine closed")
	// ErrNoStore is returned by Load and Reload on an Engine opened without
	// a blob store.
	ErrNoStore = errors.New("flatfilter: engine has no blob store")
	// ErrNoCurrent is returned by Reload when nothing has been published.
	ErrNoCurrent = manifest.ErrNoCurrent
	// ErrStaleGeneration is returned when WithMonotonicGenerations is set and
	// a blob carries an older generation than the one being served.
	ErrStaleGeneration = errors.New("flatfilter: stale generation")
	// ErrBlobTooLarge is returned when a blob exceeds WithMaxBlobSize.
	ErrBlobTooLarge = errors.New("flatfilter: blob too large")
)

// Load stages reported by LoadError and MetricsCollector.RecordReject.
const (
	StagePointer    = "pointer"
	StageOpen       = "open"
	StageRead       = "read"
	StageCheck      = "check"
	StageDecompress = "decompress"
	StageVerify     = "verify"
	StageGeneration = "generation"
)

// LoadError reports a rejected load. The generation being served is left
// unchanged.
//
// The underlying error (for example a *format.FormatError) can be accessed
// via errors.Unwrap.
type LoadError struct {
	Blob  string
	Stage string
	cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("flatfilter: load %s: %s: %v", e.Blob, e.Stage, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }
