package format

// Header layout.
const (
	// Magic identifies a compiled filter blob ("ADFB" little-endian).
	Magic uint32 = 0x42464441

	// Version is the layout version written by Builder.
	Version uint32 = 1

	// HeaderSize is the size of the fixed blob header.
	HeaderSize = 16

	offMagic    = 0
	offVersion  = 4
	offRoot     = 8
	offChecksum = 12
)

// FilterData field slots.
const (
	slotUniqueDomainsHashes = iota
	slotNetworkFilters
	slotFilterMapIndex
	slotFilterMapValues
	slotListName
	slotGeneration

	numFilterDataSlots
)

// NetworkFilter field slots.
const (
	slotMask = iota
	slotOptDomains
	slotOptNotDomains
	slotPattern
	slotHostname
	slotID
	slotRawLine

	numNetworkFilterSlots
)

const (
	refSize    = 4
	lenSize    = 4
	vtableHead = 4
)
