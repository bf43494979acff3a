package flatfilter

import "github.com/hupe1980/flatfilter/filterdata"

// Close stops watchers and releases mapped generations. Afterwards
// Current returns the empty generation and loads fail with ErrClosed.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	e.cancel()
	e.mu.Lock() // no new watchers past this point
	e.mu.Unlock()
	e.wg.Wait()

	e.swapMu.Lock()
	old := e.current.Swap(&generation{fdc: filterdata.Empty()})
	e.rc.ReleaseMemory(old.memory)
	e.swapMu.Unlock()

	return e.mappings.closeAll()
}
