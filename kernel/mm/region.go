package mm

// Region describes the half-open physical address range [Start, End) owned by
// an allocator. A Region is a logical reservation: nothing prevents other code
// from touching the addresses it covers, so the allocator that hands it out
// relies on the caller not aliasing it.
type Region struct {
	Start, End uintptr
}

// Size returns the number of bytes covered by the region.
func (r Region) Size() uintptr {
	return r.End - r.Start
}

// Contains returns true if addr falls inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End
}
