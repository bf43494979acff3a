package format

import (
	"github.com/hupe1980/flatfilter/internal/hash"
)

// DefaultMaxTables bounds the number of tables a single verification visits.
const DefaultMaxTables = 1 << 22

type verifyOptions struct {
	minVersion    uint32
	maxVersion    uint32
	checkChecksum bool
	maxTables     int
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyOptions)

// WithVersionRange accepts any layout version in [minVersion, maxVersion].
// By default only Version is accepted.
func WithVersionRange(minVersion, maxVersion uint32) VerifyOption {
	return func(o *verifyOptions) {
		o.minVersion = minVersion
		o.maxVersion = maxVersion
	}
}

// WithoutChecksum skips the payload checksum. Structural checks still run.
func WithoutChecksum() VerifyOption {
	return func(o *verifyOptions) {
		o.checkChecksum = false
	}
}

// WithMaxTables overrides DefaultMaxTables. Values <= 0 are ignored.
func WithMaxTables(n int) VerifyOption {
	return func(o *verifyOptions) {
		if n > 0 {
			o.maxTables = n
		}
	}
}

// VerifiedMemory owns a buffer that is known to hold a structurally valid
// FilterData root. It is immutable.
type VerifiedMemory struct {
	buf     []byte
	root    int
	version uint32
}

// Verify validates buf and wraps it. Ownership of buf passes to the returned
// value; the caller must not modify it afterwards.
//
// Verify never panics. Malformed input yields a *FormatError.
func Verify(buf []byte, optFns ...VerifyOption) (*VerifiedMemory, error) {
	opts := verifyOptions{
		minVersion:    Version,
		maxVersion:    Version,
		checkChecksum: true,
		maxTables:     DefaultMaxTables,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(buf) < HeaderSize {
		return nil, formatErr(ErrTruncated, 0, "header needs %d bytes, have %d", HeaderSize, len(buf))
	}
	if m := le.Uint32(buf[offMagic:]); m != Magic {
		return nil, formatErr(ErrBadMagic, offMagic, "got %#x", m)
	}
	version := le.Uint32(buf[offVersion:])
	if version < opts.minVersion || version > opts.maxVersion {
		return nil, formatErr(ErrUnsupportedVersion, offVersion, "version %d not in [%d, %d]", version, opts.minVersion, opts.maxVersion)
	}
	if opts.checkChecksum {
		want := le.Uint32(buf[offChecksum:])
		if got := hash.CRC32C(buf[HeaderSize:]); got != want {
			return nil, formatErr(ErrChecksumMismatch, offChecksum, "header %#x, payload %#x", want, got)
		}
	}

	root := int64(le.Uint32(buf[offRoot:]))
	if root < HeaderSize {
		return nil, formatErr(ErrOutOfRange, offRoot, "root offset %d inside header", root)
	}

	v := &verifier{buf: buf, maxTables: opts.maxTables}
	if err := v.filterData(root); err != nil {
		return nil, err
	}

	return &VerifiedMemory{buf: buf, root: int(root), version: version}, nil
}

// Root returns the root table. It performs no validation.
func (m *VerifiedMemory) Root() FilterData {
	return FilterData{table{buf: m.buf, pos: m.root}}
}

// Bytes returns the underlying buffer. It must be treated as read-only.
func (m *VerifiedMemory) Bytes() []byte { return m.buf }

// Size returns the buffer length in bytes.
func (m *VerifiedMemory) Size() int { return len(m.buf) }

// Version returns the layout version recorded in the header.
func (m *VerifiedMemory) Version() uint32 { return m.version }

// verifier walks the schema once. All arithmetic is done in int64 so that
// hostile offsets cannot overflow on 32-bit platforms.
type verifier struct {
	buf       []byte
	maxTables int
	tables    int
}

func (v *verifier) size() int64 { return int64(len(v.buf)) }

func (v *verifier) within(pos, n int64) bool {
	return pos >= HeaderSize && n >= 0 && pos <= v.size() && n <= v.size()-pos
}

// tableInfo is a table whose vtable has been checked.
type tableInfo struct {
	pos    int64
	vt     int64
	vtSize int64
	tSize  int64
}

func (v *verifier) table(pos int64) (tableInfo, error) {
	v.tables++
	if v.tables > v.maxTables {
		return tableInfo{}, formatErr(ErrTooManyTables, int(pos), "limit %d", v.maxTables)
	}
	if pos%4 != 0 {
		return tableInfo{}, formatErr(ErrMalformed, int(pos), "misaligned table")
	}
	if !v.within(pos, refSize) {
		return tableInfo{}, formatErr(ErrTruncated, int(pos), "table header")
	}
	vt := pos - int64(int32(le.Uint32(v.buf[pos:])))
	if vt%2 != 0 {
		return tableInfo{}, formatErr(ErrMalformed, int(pos), "misaligned vtable %d", vt)
	}
	if !v.within(vt, vtableHead) {
		return tableInfo{}, formatErr(ErrOutOfRange, int(pos), "vtable at %d", vt)
	}
	vtSize := int64(le.Uint16(v.buf[vt:]))
	tSize := int64(le.Uint16(v.buf[vt+2:]))
	if vtSize < vtableHead || vtSize%2 != 0 {
		return tableInfo{}, formatErr(ErrMalformed, int(vt), "vtable size %d", vtSize)
	}
	if !v.within(vt, vtSize) {
		return tableInfo{}, formatErr(ErrTruncated, int(vt), "vtable of %d bytes", vtSize)
	}
	if tSize < refSize {
		return tableInfo{}, formatErr(ErrMalformed, int(vt), "table size %d", tSize)
	}
	if !v.within(pos, tSize) {
		return tableInfo{}, formatErr(ErrTruncated, int(pos), "table of %d bytes", tSize)
	}
	return tableInfo{pos: pos, vt: vt, vtSize: vtSize, tSize: tSize}, nil
}

// field returns the absolute position of a field of the given width, or 0
// if the field is absent.
func (v *verifier) field(t tableInfo, slot int, width int64) (int64, error) {
	o := int64(vtableHead + 2*slot)
	if o+2 > t.vtSize {
		return 0, nil
	}
	off := int64(le.Uint16(v.buf[t.vt+o:]))
	if off == 0 {
		return 0, nil
	}
	if off < refSize || off+width > t.tSize {
		return 0, formatErr(ErrOutOfRange, int(t.vt+o), "field %d at %d exceeds table size %d", slot, off, t.tSize)
	}
	return t.pos + off, nil
}

// ref follows a reference field and returns the target position.
func (v *verifier) ref(t tableInfo, slot int) (int64, bool, error) {
	p, err := v.field(t, slot, refSize)
	if err != nil || p == 0 {
		return 0, false, err
	}
	target := p + int64(int32(le.Uint32(v.buf[p:])))
	if !v.within(target, lenSize) {
		return 0, false, formatErr(ErrOutOfRange, int(p), "field %d references %d", slot, target)
	}
	return target, true, nil
}

// vector checks a vector's bounds and returns its length.
func (v *verifier) vector(pos int64, elemSize int64) (int64, error) {
	if pos%4 != 0 {
		return 0, formatErr(ErrMalformed, int(pos), "misaligned vector")
	}
	n := int64(le.Uint32(v.buf[pos:]))
	if !v.within(pos+lenSize, n*elemSize) {
		return 0, formatErr(ErrTruncated, int(pos), "vector of %d x %d bytes", n, elemSize)
	}
	return n, nil
}

func (v *verifier) vectorField(t tableInfo, slot int, elemSize int64, required bool) (int64, int64, error) {
	target, ok, err := v.ref(t, slot)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		if required {
			return 0, 0, formatErr(ErrMissingField, int(t.pos), "slot %d", slot)
		}
		return 0, 0, nil
	}
	n, err := v.vector(target, elemSize)
	return target, n, err
}

func (v *verifier) stringField(t tableInfo, slot int) error {
	target, ok, err := v.ref(t, slot)
	if err != nil || !ok {
		return err
	}
	n := int64(le.Uint32(v.buf[target:]))
	if !v.within(target+lenSize, n+1) {
		return formatErr(ErrTruncated, int(target), "string of %d bytes", n)
	}
	if v.buf[target+lenSize+n] != 0 {
		return formatErr(ErrMalformed, int(target+lenSize+n), "string not terminated")
	}
	return nil
}

func (v *verifier) filterData(pos int64) error {
	t, err := v.table(pos)
	if err != nil {
		return err
	}

	if _, _, err := v.vectorField(t, slotUniqueDomainsHashes, 8, true); err != nil {
		return err
	}

	filtersPos, numFilters, err := v.vectorField(t, slotNetworkFilters, refSize, false)
	if err != nil {
		return err
	}
	for i := int64(0); i < numFilters; i++ {
		p := filtersPos + lenSize + refSize*i
		if err := v.networkFilter(p + int64(int32(le.Uint32(v.buf[p:])))); err != nil {
			return err
		}
	}

	_, numKeys, err := v.vectorField(t, slotFilterMapIndex, 8, false)
	if err != nil {
		return err
	}
	valuesPos, numValues, err := v.vectorField(t, slotFilterMapValues, 4, false)
	if err != nil {
		return err
	}
	if numKeys != numValues {
		return formatErr(ErrMalformed, int(pos), "filter map has %d keys and %d values", numKeys, numValues)
	}
	for i := int64(0); i < numValues; i++ {
		p := valuesPos + lenSize + 4*i
		if idx := int64(le.Uint32(v.buf[p:])); idx >= numFilters {
			return formatErr(ErrOutOfRange, int(p), "filter map value %d, have %d filters", idx, numFilters)
		}
	}

	if err := v.stringField(t, slotListName); err != nil {
		return err
	}
	_, err = v.field(t, slotGeneration, 8)
	return err
}

func (v *verifier) networkFilter(pos int64) error {
	if pos < HeaderSize || pos > v.size() {
		return formatErr(ErrOutOfRange, int(pos), "filter table")
	}
	t, err := v.table(pos)
	if err != nil {
		return err
	}
	if _, err := v.field(t, slotMask, 4); err != nil {
		return err
	}
	if _, _, err := v.vectorField(t, slotOptDomains, 4, false); err != nil {
		return err
	}
	if _, _, err := v.vectorField(t, slotOptNotDomains, 4, false); err != nil {
		return err
	}
	if err := v.stringField(t, slotPattern); err != nil {
		return err
	}
	if err := v.stringField(t, slotHostname); err != nil {
		return err
	}
	if _, err := v.field(t, slotID, 8); err != nil {
		return err
	}
	return v.stringField(t, slotRawLine)
}
