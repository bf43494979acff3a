package flatfilter

import (
	"errors"
	"io"
	"runtime"
	"sync"

	"github.com/hupe1980/flatfilter/filterdata"
)

// mapping is the mapped blob under a zero-copy generation.
type mapping struct {
	set  *mappingSet
	blob io.Closer
	once sync.Once
	err  error
}

func (m *mapping) Close() error {
	m.once.Do(func() {
		m.set.remove(m)
		m.err = m.blob.Close()
	})
	return m.err
}

// mappingSet tracks the mappings of installed generations. A mapping is
// closed once the Context built on it is unreachable, or by closeAll.
type mappingSet struct {
	mu   sync.Mutex
	live map[*mapping]struct{}
}

func (s *mappingSet) track(fdc *filterdata.Context, blob io.Closer) {
	m := &mapping{set: s, blob: blob}

	s.mu.Lock()
	if s.live == nil {
		s.live = make(map[*mapping]struct{})
	}
	s.live[m] = struct{}{}
	s.mu.Unlock()

	runtime.AddCleanup(fdc, func(m *mapping) { _ = m.Close() }, m)
}

func (s *mappingSet) remove(m *mapping) {
	s.mu.Lock()
	delete(s.live, m)
	s.mu.Unlock()
}

func (s *mappingSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *mappingSet) closeAll() error {
	s.mu.Lock()
	live := make([]*mapping, 0, len(s.live))
	for m := range s.live {
		live = append(live, m)
	}
	s.mu.Unlock()

	var errs []error
	for _, m := range live {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
