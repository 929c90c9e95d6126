package mm

import "earlyalloc/kernel"

// Frame is the index of a PageSize-sized physical page.
type Frame uintptr

// InvalidFrame is the frame reported alongside a failed frame allocation.
const InvalidFrame = ^Frame(0)

// Valid reports whether f refers to an actual page.
func (f Frame) Valid() bool { return f != InvalidFrame }

// Address returns the physical address of the first byte of f.
func (f Frame) Address() uintptr { return uintptr(f) << PageShift }

// FrameFromAddress returns the frame that holds physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> PageShift)
}

// FrameAllocatorFn reserves a single physical frame.
type FrameAllocatorFn func() (Frame, *kernel.Error)

var (
	activeFrameAllocator FrameAllocatorFn

	errNoFrameAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// SetFrameAllocator selects the function that AllocFrame delegates to. The
// early allocator registers itself here during boot; passing nil leaves the
// kernel without a frame source.
func SetFrameAllocator(fn FrameAllocatorFn) {
	activeFrameAllocator = fn
}

// AllocFrame reserves a frame from the registered frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if activeFrameAllocator == nil {
		return InvalidFrame, errNoFrameAllocator
	}
	return activeFrameAllocator()
}
