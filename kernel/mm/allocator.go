// Package mm defines the memory management contracts shared by the kernel
// allocators together with the page-size constants and address arithmetic
// helpers they rely on.
package mm

import "earlyalloc/kernel"

var (
	// ErrNoMemory is returned by allocators when a request cannot be
	// satisfied from the memory they manage. It is never retried by the
	// allocator itself.
	ErrNoMemory = &kernel.Error{Module: "mm", Message: "out of memory"}

	// ErrInvalidAlignment is returned when an allocation requests an
	// alignment that is not a power of two.
	ErrInvalidAlignment = &kernel.Error{Module: "mm", Message: "alignment is not a power of two"}
)

// Layout describes the size and alignment of a byte allocation. An Align of
// zero is treated as 1.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// BaseAllocator is the lifecycle contract shared by all allocators.
type BaseAllocator interface {
	// Init hands the [start, start+size) region to the allocator and
	// resets its state.
	Init(start, size uintptr)

	// AddMemory asks the allocator to manage an additional region.
	AddMemory(start, size uintptr) *kernel.Error
}

// ByteAllocator is implemented by allocators that hand out byte-granular
// memory blocks.
type ByteAllocator interface {
	BaseAllocator

	// Alloc reserves a block described by layout and returns its address.
	Alloc(layout Layout) (uintptr, *kernel.Error)

	// Dealloc releases a block previously returned by Alloc.
	Dealloc(addr uintptr, layout Layout)

	// TotalBytes returns the size of the managed memory.
	TotalBytes() uintptr

	// UsedBytes returns the number of bytes currently reserved for byte
	// allocations.
	UsedBytes() uintptr

	// AvailableBytes returns the number of bytes that can still be
	// allocated.
	AvailableBytes() uintptr
}

// PageAllocator is implemented by allocators that hand out page-granular
// memory blocks. The page size is fixed when the allocator is constructed.
type PageAllocator interface {
	BaseAllocator

	// PageSize returns the allocation granularity in bytes.
	PageSize() uintptr

	// AllocPages reserves numPages contiguous pages and returns the
	// address of the first one.
	AllocPages(numPages, alignPow2 uintptr) (uintptr, *kernel.Error)

	// DeallocPages releases pages previously returned by AllocPages.
	DeallocPages(addr, numPages uintptr)

	TotalPages() uintptr
	UsedPages() uintptr
	AvailablePages() uintptr
}
