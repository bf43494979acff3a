// Package mmap maps filter blobs into memory read-only.
//
// A Mapping is handed out by the local blob store when the engine loads a
// generation in zero-copy mode. The verified context then reads straight
// from the mapped pages, so the mapping has to outlive every context built
// on it; the engine keeps it until Close.
//
//	m, err := mmap.Open("filters-0001.afb")
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	_ = m.Advise(mmap.AccessRandom)
//	blob := m.Bytes()
//
// Unix uses mmap(2) and madvise(2). Windows uses CreateFileMapping and
// MapViewOfFile; Advise is a no-op there.
package mmap
