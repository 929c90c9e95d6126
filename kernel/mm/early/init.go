package early

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/kfmt"
	"earlyalloc/kernel/mm"
)

var (
	// earlyAllocator is the allocator instance used by the kernel for both
	// byte and page allocations before switching to the general purpose
	// allocators.
	earlyAllocator = NewLocked(mm.PageSize)

	errRegionTooSmall = &kernel.Error{Module: "early_alloc", Message: "region does not contain a full page"}
)

// Init hands the [start, start+size) region to the kernel's early allocator,
// prints a summary of the managed region and registers the allocator as the
// active frame allocator.
//
// The region may not be page-aligned; its start is rounded up and its end
// rounded down so that every page handed out as a frame is page-aligned.
func Init(start, size uintptr) *kernel.Error {
	if start+size < start {
		return errRegionOverflow
	}

	alignedStart := mm.AlignUp(start, mm.PageSize)
	alignedEnd := mm.AlignDown(start+size, mm.PageSize)
	if alignedStart < start || alignedEnd <= alignedStart {
		return errRegionTooSmall
	}

	earlyAllocator.Init(alignedStart, alignedEnd-alignedStart)
	printRegion(earlyAllocator)

	mm.SetFrameAllocator(earlyAllocFrame)
	return nil
}

// Instance returns the kernel's early allocator.
func Instance() *LockedAllocator {
	return earlyAllocator
}

// earlyAllocFrame reserves a single frame from the page area of the early
// allocator.
func earlyAllocFrame() (mm.Frame, *kernel.Error) {
	addr, err := earlyAllocator.AllocPages(1, mm.PageSize)
	if err != nil {
		return mm.InvalidFrame, err
	}

	return mm.FrameFromAddress(addr), nil
}

// printRegion prints the extents and capacity of the region managed by alloc.
func printRegion(alloc *LockedAllocator) {
	region := alloc.Region()
	kfmt.Printf("[early_alloc] managing region [0x%16x - 0x%16x], size: %d bytes, pages: %d\n",
		region.Start, region.End, region.Size(), alloc.TotalPages(),
	)
	kfmt.Printf("[early_alloc] page size: %d bytes, available: %d bytes\n",
		alloc.PageSize(), alloc.AvailableBytes(),
	)
}
