// Package early implements the allocator that serves both byte and page
// allocations while the kernel boots, before any general purpose allocator is
// available.
package early

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/kfmt"
	"earlyalloc/kernel/mm"
)

var (
	// panicFn is mocked by tests so that fatal faults can be trapped.
	panicFn = kfmt.Panic

	errAddMemoryUnsupported    = &kernel.Error{Module: "early_alloc", Message: "cannot add memory to the early allocator"}
	errDeallocPagesUnsupported = &kernel.Error{Module: "early_alloc", Message: "pages allocated by the early allocator cannot be freed"}
	errDeallocUnderflow        = &kernel.Error{Module: "early_alloc", Message: "dealloc called without a matching alloc"}
	errRegionOverflow          = &kernel.Error{Module: "early_alloc", Message: "region wraps around the address space"}
	errInvalidPageSize         = &kernel.Error{Module: "early_alloc", Message: "page size is not a power of two"}
)

// Allocator is a double-ended bump allocator over a single memory region:
//
//	[ bytes-used | avail-area | pages-used ]
//	|            | -->    <-- |            |
//	start     bytePtr      pagePtr        end
//
// Byte allocations grow forward from start and page allocations grow
// backwards from end. Byte allocations are not tracked individually; the
// allocator only counts them and reclaims the whole byte area once the count
// drops back to zero. Pages are never reclaimed as they typically back
// structures, such as early page tables, that outlive the allocator.
//
// Allocator provides no locking. Callers that share it across execution
// contexts must serialize access, for example through a LockedAllocator.
//
// The zero value is an empty allocator that uses mm.PageSize pages; it must be
// initialized with Init before use.
type Allocator struct {
	start, end uintptr

	// bytePtr is the next free address for byte allocations and pagePtr
	// the end of the free gap for page allocations.
	// start <= bytePtr <= pagePtr <= end holds at all times.
	bytePtr, pagePtr uintptr

	// count tracks the number of outstanding byte allocations.
	count uint64

	pageSize uintptr
}

// New returns an empty allocator whose page allocations are pageSize bytes
// long. A pageSize of zero selects mm.PageSize. Any other value must be a
// power of two.
func New(pageSize uintptr) Allocator {
	if pageSize != 0 && !mm.IsPowerOfTwo(pageSize) {
		panicFn(errInvalidPageSize)
		pageSize = 0
	}

	return Allocator{pageSize: pageSize}
}

// Init hands the [start, start+size) region to the allocator. Any previous
// state is discarded without validation so callers must not re-initialize an
// allocator while allocations are outstanding. The region is assumed not to be
// used by anything else.
func (a *Allocator) Init(start, size uintptr) {
	end := start + size
	if end < start {
		panicFn(errRegionOverflow)
		return
	}

	*a = Allocator{
		start:    start,
		end:      end,
		bytePtr:  start,
		pagePtr:  end,
		pageSize: a.pageSize,
	}
}

// AddMemory is not supported by the early allocator: a second, disjoint
// region cannot be tracked without a free list. Calling it is a fatal error.
func (a *Allocator) AddMemory(_, _ uintptr) *kernel.Error {
	panicFn(errAddMemoryUnsupported)
	return errAddMemoryUnsupported
}

// Region returns the memory region managed by the allocator.
func (a *Allocator) Region() mm.Region {
	return mm.Region{Start: a.start, End: a.end}
}

// Alloc reserves layout.Size bytes aligned to layout.Align from the front of
// the free gap and returns the address of the block. Alloc returns
// mm.ErrNoMemory if the block would overlap the page area; the allocator state
// is left untouched in that case.
func (a *Allocator) Alloc(layout mm.Layout) (uintptr, *kernel.Error) {
	align := layout.Align
	if align == 0 {
		align = 1
	}

	if !mm.IsPowerOfTwo(align) {
		return 0, mm.ErrInvalidAlignment
	}

	blockStart := mm.AlignUp(a.bytePtr, align)
	blockEnd := blockStart + layout.Size
	if blockStart < a.bytePtr || blockEnd < blockStart || blockEnd > a.pagePtr {
		return 0, mm.ErrNoMemory
	}

	a.bytePtr = blockEnd
	a.count++
	return blockStart, nil
}

// Dealloc releases a byte allocation. The address and layout are ignored:
// only the number of outstanding allocations is tracked and once it reaches
// zero the entire byte area is reclaimed. A Dealloc call without a matching
// Alloc is a fatal error.
func (a *Allocator) Dealloc(_ uintptr, _ mm.Layout) {
	if a.count == 0 {
		panicFn(errDeallocUnderflow)
		return
	}

	if a.count--; a.count == 0 {
		a.bytePtr = a.start
	}
}

// TotalBytes returns the size of the managed region.
func (a *Allocator) TotalBytes() uintptr {
	return a.end - a.start
}

// UsedBytes returns the size of the byte area, including alignment padding.
func (a *Allocator) UsedBytes() uintptr {
	return a.bytePtr - a.start
}

// AvailableBytes returns the size of the free gap between the byte and page
// areas.
func (a *Allocator) AvailableBytes() uintptr {
	return a.pagePtr - a.bytePtr
}

// PageSize returns the size of the pages handed out by AllocPages.
func (a *Allocator) PageSize() uintptr {
	if a.pageSize == 0 {
		return mm.PageSize
	}
	return a.pageSize
}

// AllocPages reserves numPages contiguous pages from the back of the free gap
// and returns the address of the first page. Alignment requests are accepted
// but only the page size granularity, measured from the region end, is
// honored. AllocPages returns mm.ErrNoMemory if numPages is zero or if the
// pages would overlap the byte area.
func (a *Allocator) AllocPages(numPages, _ uintptr) (uintptr, *kernel.Error) {
	pageSize := a.PageSize()
	if numPages == 0 || numPages > a.pagePtr/pageSize {
		return 0, mm.ErrNoMemory
	}

	candidate := a.pagePtr - numPages*pageSize
	if candidate < a.bytePtr {
		return 0, mm.ErrNoMemory
	}

	a.pagePtr = candidate
	return candidate, nil
}

// DeallocPages is not supported by the early allocator. Calling it is a fatal
// error.
func (a *Allocator) DeallocPages(_, _ uintptr) {
	panicFn(errDeallocPagesUnsupported)
}

// TotalPages returns the number of pages that fit in the managed region.
func (a *Allocator) TotalPages() uintptr {
	return (a.end - a.start) / a.PageSize()
}

// UsedPages returns the number of allocated pages.
func (a *Allocator) UsedPages() uintptr {
	return (a.end - a.pagePtr) / a.PageSize()
}

// AvailablePages returns the number of pages that fit in the free gap.
func (a *Allocator) AvailablePages() uintptr {
	return (a.pagePtr - a.bytePtr) / a.PageSize()
}
