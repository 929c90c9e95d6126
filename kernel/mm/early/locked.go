package early

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/mm"
	"earlyalloc/kernel/sync"
)

var (
	_ mm.ByteAllocator = (*Allocator)(nil)
	_ mm.PageAllocator = (*Allocator)(nil)
	_ mm.ByteAllocator = (*LockedAllocator)(nil)
	_ mm.PageAllocator = (*LockedAllocator)(nil)
)

// LockedAllocator serializes access to an Allocator with a spinlock so that it
// can be shared between execution contexts.
type LockedAllocator struct {
	lock  sync.Spinlock
	alloc Allocator
}

// NewLocked returns an empty LockedAllocator whose page allocations are
// pageSize bytes long. See New.
func NewLocked(pageSize uintptr) *LockedAllocator {
	return &LockedAllocator{alloc: New(pageSize)}
}

// Init implements mm.BaseAllocator.
func (l *LockedAllocator) Init(start, size uintptr) {
	l.lock.Acquire()
	defer l.lock.Release()
	l.alloc.Init(start, size)
}

// AddMemory implements mm.BaseAllocator.
func (l *LockedAllocator) AddMemory(start, size uintptr) *kernel.Error {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.AddMemory(start, size)
}

// Region returns the memory region managed by the wrapped allocator.
func (l *LockedAllocator) Region() mm.Region {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.Region()
}

// Alloc implements mm.ByteAllocator.
func (l *LockedAllocator) Alloc(layout mm.Layout) (uintptr, *kernel.Error) {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.Alloc(layout)
}

// Dealloc implements mm.ByteAllocator.
func (l *LockedAllocator) Dealloc(addr uintptr, layout mm.Layout) {
	l.lock.Acquire()
	defer l.lock.Release()
	l.alloc.Dealloc(addr, layout)
}

// TotalBytes implements mm.ByteAllocator.
func (l *LockedAllocator) TotalBytes() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.TotalBytes()
}

// UsedBytes implements mm.ByteAllocator.
func (l *LockedAllocator) UsedBytes() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.UsedBytes()
}

// AvailableBytes implements mm.ByteAllocator.
func (l *LockedAllocator) AvailableBytes() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.AvailableBytes()
}

// PageSize implements mm.PageAllocator.
func (l *LockedAllocator) PageSize() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.PageSize()
}

// AllocPages implements mm.PageAllocator.
func (l *LockedAllocator) AllocPages(numPages, alignPow2 uintptr) (uintptr, *kernel.Error) {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.AllocPages(numPages, alignPow2)
}

// DeallocPages implements mm.PageAllocator.
func (l *LockedAllocator) DeallocPages(addr, numPages uintptr) {
	l.lock.Acquire()
	defer l.lock.Release()
	l.alloc.DeallocPages(addr, numPages)
}

// TotalPages implements mm.PageAllocator.
func (l *LockedAllocator) TotalPages() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.TotalPages()
}

// UsedPages implements mm.PageAllocator.
func (l *LockedAllocator) UsedPages() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.UsedPages()
}

// AvailablePages implements mm.PageAllocator.
func (l *LockedAllocator) AvailablePages() uintptr {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.alloc.AvailablePages()
}
