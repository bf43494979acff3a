package compiler

const idSeed uint64 = 5408

// ComputeFilterID returns the stable id of f. Two rules that differ only
// in their source text get the same id.
func ComputeFilterID(f *Filter) uint64 {
	h := (idSeed * 33) ^ uint64(f.Mask)
	h = foldString(h, f.Modifier)
	for _, d := range uniqueHashes(f.Domains) {
		h = h*33 ^ d
	}
	for _, d := range uniqueHashes(f.NotDomains) {
		h = h*33 ^ d
	}
	h = foldString(h, f.Pattern)
	return foldString(h, f.Hostname)
}

func foldString(h uint64, s string) uint64 {
	for _, r := range s {
		h = h*33 ^ uint64(r)
	}
	return h
}
