package early

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/kfmt"
	"earlyalloc/kernel/mm"
	"testing"
)

// trapPanics replaces panicFn with a function that records the reported
// errors instead of halting the CPU.
func trapPanics(t *testing.T) *[]interface{} {
	var trapped []interface{}
	panicFn = func(e interface{}) {
		trapped = append(trapped, e)
	}
	t.Cleanup(func() { panicFn = kfmt.Panic })
	return &trapped
}

// checkInvariants verifies that the allocator pointers still partition the
// managed region.
func checkInvariants(t *testing.T, a *Allocator) {
	t.Helper()
	if !(a.start <= a.bytePtr && a.bytePtr <= a.pagePtr && a.pagePtr <= a.end) {
		t.Fatalf("invariant violated: start=0x%x bytePtr=0x%x pagePtr=0x%x end=0x%x", a.start, a.bytePtr, a.pagePtr, a.end)
	}

	if a.count == 0 && a.bytePtr != a.start {
		t.Fatalf("expected byte area to be empty when no allocations are outstanding; bytePtr=0x%x", a.bytePtr)
	}

	if (a.end-a.pagePtr)%a.PageSize() != 0 {
		t.Fatalf("expected page area size to be a multiple of the page size; got 0x%x", a.end-a.pagePtr)
	}
}

func TestAllocatorInit(t *testing.T) {
	a := New(0x1000)
	a.Init(0x1000, 0x4000)
	checkInvariants(t, &a)

	specs := []struct {
		name     string
		fn       func() uintptr
		expValue uintptr
	}{
		{"TotalBytes", a.TotalBytes, 0x4000},
		{"UsedBytes", a.UsedBytes, 0},
		{"AvailableBytes", a.AvailableBytes, 0x4000},
		{"PageSize", a.PageSize, 0x1000},
		{"TotalPages", a.TotalPages, 4},
		{"UsedPages", a.UsedPages, 0},
		{"AvailablePages", a.AvailablePages, 4},
	}

	for _, spec := range specs {
		if got := spec.fn(); got != spec.expValue {
			t.Errorf("expected %s() to return 0x%x; got 0x%x", spec.name, spec.expValue, got)
		}
	}

	if exp, got := (mm.Region{Start: 0x1000, End: 0x5000}), a.Region(); got != exp {
		t.Errorf("expected managed region to be %+v; got %+v", exp, got)
	}
}

func TestAllocatorScenario(t *testing.T) {
	a := New(0x1000)
	a.Init(0x1000, 0x4000)

	addr, err := a.Alloc(mm.Layout{Size: 16, Align: 8})
	if err != nil {
		t.Fatal(err)
	}
	if exp := uintptr(0x1000); addr != exp {
		t.Fatalf("expected byte allocation to return 0x%x; got 0x%x", exp, addr)
	}
	if exp, got := uintptr(16), a.UsedBytes(); got != exp {
		t.Fatalf("expected UsedBytes() to return %d; got %d", exp, got)
	}
	if exp, got := uintptr(3), a.AvailablePages(); got != exp {
		t.Fatalf("expected AvailablePages() to return %d; got %d", exp, got)
	}

	addr, err = a.AllocPages(1, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if exp := uintptr(0x4000); addr != exp {
		t.Fatalf("expected page allocation to return 0x%x; got 0x%x", exp, addr)
	}
	if exp, got := uintptr(1), a.UsedPages(); got != exp {
		t.Fatalf("expected UsedPages() to return %d; got %d", exp, got)
	}
	if exp, got := uintptr(2), a.AvailablePages(); got != exp {
		t.Fatalf("expected AvailablePages() to return %d; got %d", exp, got)
	}

	// The first page of the region is partially used by the byte area so
	// only two more pages fit.
	for _, expAddr := range []uintptr{0x3000, 0x2000} {
		if addr, err = a.AllocPages(1, 0x1000); err != nil {
			t.Fatal(err)
		}
		if addr != expAddr {
			t.Fatalf("expected page allocation to return 0x%x; got 0x%x", expAddr, addr)
		}
		checkInvariants(t, &a)
	}

	if _, err = a.AllocPages(1, 0x1000); err != mm.ErrNoMemory {
		t.Fatalf("expected to get mm.ErrNoMemory; got %v", err)
	}
	if exp, got := uintptr(0x2000), a.pagePtr; got != exp {
		t.Fatalf("expected failed allocation to leave pagePtr at 0x%x; got 0x%x", exp, got)
	}
	checkInvariants(t, &a)
}

func TestAllocatorByteAlignment(t *testing.T) {
	a := New(0x1000)
	a.Init(0x1000, 0x4000)

	specs := []struct {
		layout     mm.Layout
		expAddr    uintptr
		expBytePtr uintptr
	}{
		{mm.Layout{Size: 1, Align: 1}, 0x1000, 0x1001},
		{mm.Layout{Size: 8, Align: 8}, 0x1008, 0x1010},
		{mm.Layout{Size: 3, Align: 0}, 0x1010, 0x1013},
		{mm.Layout{Size: 4, Align: 0x100}, 0x1100, 0x1104},
		{mm.Layout{Size: 0, Align: 0x1000}, 0x2000, 0x2000},
		{mm.Layout{Size: 0x10, Align: 4}, 0x2000, 0x2010},
	}

	for specIndex, spec := range specs {
		addr, err := a.Alloc(spec.layout)
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if addr != spec.expAddr {
			t.Errorf("[spec %d] expected Alloc to return 0x%x; got 0x%x", specIndex, spec.expAddr, addr)
		}

		if align := spec.layout.Align; align != 0 && !mm.IsAligned(addr, align) {
			t.Errorf("[spec %d] expected address 0x%x to be aligned to 0x%x", specIndex, addr, align)
		}

		if a.bytePtr != spec.expBytePtr {
			t.Errorf("[spec %d] expected bytePtr to be 0x%x; got 0x%x", specIndex, spec.expBytePtr, a.bytePtr)
		}

		if exp := uint64(specIndex + 1); a.count != exp {
			t.Errorf("[spec %d] expected allocation count to be %d; got %d", specIndex, exp, a.count)
		}
		checkInvariants(t, &a)
	}
}

func TestAllocatorByteAllocErrors(t *testing.T) {
	specs := []struct {
		name   string
		layout mm.Layout
		expErr *kernel.Error
	}{
		{"larger than the free gap", mm.Layout{Size: 0x2001, Align: 1}, mm.ErrNoMemory},
		{"alignment pushes block into the page area", mm.Layout{Size: 1, Align: 0x4000}, mm.ErrNoMemory},
		{"size wraps around", mm.Layout{Size: ^uintptr(0), Align: 1}, mm.ErrNoMemory},
		{"alignment far beyond the region", mm.Layout{Size: 1, Align: 1 << 63}, mm.ErrNoMemory},
		{"alignment not a power of two", mm.Layout{Size: 16, Align: 24}, mm.ErrInvalidAlignment},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			a := New(0x1000)
			a.Init(0x1000, 0x4000)
			if _, err := a.AllocPages(2, 0x1000); err != nil {
				t.Fatal(err)
			}
			if _, err := a.Alloc(mm.Layout{Size: 1, Align: 1}); err != nil {
				t.Fatal(err)
			}

			before := a
			if _, err := a.Alloc(spec.layout); err != spec.expErr {
				t.Fatalf("expected to get %v; got %v", spec.expErr, err)
			}

			if a != before {
				t.Fatalf("expected failed allocation to leave the allocator untouched; before %+v, after %+v", before, a)
			}
		})
	}
}

func TestAllocatorByteAreaBoundary(t *testing.T) {
	a := New(0x1000)
	a.Init(0x1000, 0x4000)
	if _, err := a.AllocPages(1, 0x1000); err != nil {
		t.Fatal(err)
	}

	addr, err := a.Alloc(mm.Layout{Size: a.AvailableBytes(), Align: 1})
	if err != nil {
		t.Fatal(err)
	}
	if exp := uintptr(0x1000); addr != exp {
		t.Fatalf("expected Alloc to return 0x%x; got 0x%x", exp, addr)
	}
	if a.bytePtr != a.pagePtr {
		t.Fatalf("expected byte area to reach the page area; bytePtr=0x%x, pagePtr=0x%x", a.bytePtr, a.pagePtr)
	}

	if _, err = a.Alloc(mm.Layout{Size: 1, Align: 1}); err != mm.ErrNoMemory {
		t.Fatalf("expected to get mm.ErrNoMemory; got %v", err)
	}
	if _, err = a.AllocPages(1, 0x1000); err != mm.ErrNoMemory {
		t.Fatalf("expected to get mm.ErrNoMemory; got %v", err)
	}
	if exp := uint64(1); a.count != exp {
		t.Fatalf("expected allocation count to be %d; got %d", exp, a.count)
	}
	checkInvariants(t, &a)
}

func TestAllocatorPageAllocation(t *testing.T) {
	a := New(0x1000)
	a.Init(0x10000, 0x10000)

	var (
		total     uintptr
		requested = []uintptr{1, 3, 2, 4}
	)

	for specIndex, numPages := range requested {
		addr, err := a.AllocPages(numPages, 0x1000)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		total += numPages
		if exp := a.end - total*0x1000; addr != exp || a.pagePtr != exp {
			t.Fatalf("[spec %d] expected pages at 0x%x; got 0x%x (pagePtr 0x%x)", specIndex, exp, addr, a.pagePtr)
		}

		if got := a.UsedPages(); got != total {
			t.Fatalf("[spec %d] expected UsedPages() to return %d; got %d", specIndex, total, got)
		}
		checkInvariants(t, &a)
	}

	if exp, got := uintptr(16-10), a.AvailablePages(); got != exp {
		t.Fatalf("expected AvailablePages() to return %d; got %d", exp, got)
	}

	errSpecs := []struct {
		numPages uintptr
	}{
		{0},
		{7},
		{^uintptr(0)},
		{^uintptr(0)/0x1000 + 1},
	}

	for specIndex, spec := range errSpecs {
		before := a
		if _, err := a.AllocPages(spec.numPages, 0x1000); err != mm.ErrNoMemory {
			t.Errorf("[spec %d] expected AllocPages(%d) to return mm.ErrNoMemory; got %v", specIndex, spec.numPages, err)
		}
		if a != before {
			t.Errorf("[spec %d] expected failed allocation to leave the allocator untouched", specIndex)
		}
	}

	// The remaining pages can still be allocated in one go.
	addr, err := a.AllocPages(6, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if addr != a.start || a.AvailableBytes() != 0 {
		t.Fatalf("expected the whole region to be used; got addr 0x%x, available %d", addr, a.AvailableBytes())
	}
}

func TestAllocatorBulkReclamation(t *testing.T) {
	layouts := []mm.Layout{
		{Size: 16, Align: 8},
		{Size: 3, Align: 1},
		{Size: 64, Align: 32},
		{Size: 100, Align: 4},
	}

	fresh := New(0x1000)
	fresh.Init(0x1000, 0x4000)
	var expAddrs []uintptr
	for _, layout := range layouts {
		addr, err := fresh.Alloc(layout)
		if err != nil {
			t.Fatal(err)
		}
		expAddrs = append(expAddrs, addr)
	}

	a := New(0x1000)
	a.Init(0x1000, 0x4000)
	for round := 0; round < 3; round++ {
		for i, layout := range layouts {
			addr, err := a.Alloc(layout)
			if err != nil {
				t.Fatalf("[round %d] unexpected error: %v", round, err)
			}
			if addr != expAddrs[i] {
				t.Fatalf("[round %d] expected allocation %d to return 0x%x; got 0x%x", round, i, expAddrs[i], addr)
			}
		}

		usedBytes := a.UsedBytes()
		for i := len(layouts) - 1; i > 0; i-- {
			a.Dealloc(expAddrs[i], layouts[i])
			if got := a.UsedBytes(); got != usedBytes {
				t.Fatalf("[round %d] expected UsedBytes() to remain %d while allocations are outstanding; got %d", round, usedBytes, got)
			}
		}

		a.Dealloc(expAddrs[0], layouts[0])
		if got := a.UsedBytes(); got != 0 {
			t.Fatalf("[round %d] expected UsedBytes() to be 0 after the last dealloc; got %d", round, got)
		}
		checkInvariants(t, &a)
	}
}

func TestAllocatorPagesSurviveByteReclamation(t *testing.T) {
	a := New(0x1000)
	a.Init(0x1000, 0x4000)

	layout := mm.Layout{Size: 32, Align: 8}
	addr, err := a.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = a.AllocPages(2, 0x1000); err != nil {
		t.Fatal(err)
	}

	a.Dealloc(addr, layout)

	if exp, got := uintptr(2), a.UsedPages(); got != exp {
		t.Fatalf("expected UsedPages() to return %d; got %d", exp, got)
	}
	if exp, got := uintptr(2), a.AvailablePages(); got != exp {
		t.Fatalf("expected AvailablePages() to return %d; got %d", exp, got)
	}
}

func TestAllocatorReinit(t *testing.T) {
	a := New(0x2000)
	a.Init(0x1000, 0x4000)
	if _, err := a.Alloc(mm.Layout{Size: 64, Align: 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.AllocPages(1, 0x2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.count != 1 || a.UsedPages() != 1 {
		t.Fatalf("expected one byte allocation and one page before re-init; got count=%d pages=%d", a.count, a.UsedPages())
	}

	a.Init(0x10000, 0x8000)
	checkInvariants(t, &a)

	if exp := (Allocator{start: 0x10000, end: 0x18000, bytePtr: 0x10000, pagePtr: 0x18000, pageSize: 0x2000}); a != exp {
		t.Fatalf("expected re-initialized allocator to be %+v; got %+v", exp, a)
	}
}

func TestAllocatorZeroValue(t *testing.T) {
	var a Allocator

	if exp, got := mm.PageSize, a.PageSize(); got != exp {
		t.Fatalf("expected zero value allocator to use %d byte pages; got %d", exp, got)
	}

	if _, err := a.Alloc(mm.Layout{Size: 1, Align: 1}); err != mm.ErrNoMemory {
		t.Fatalf("expected to get mm.ErrNoMemory; got %v", err)
	}

	if _, err := a.AllocPages(1, mm.PageSize); err != mm.ErrNoMemory {
		t.Fatalf("expected to get mm.ErrNoMemory; got %v", err)
	}

	a.Init(0, 2*mm.PageSize)
	if exp, got := uintptr(2), a.TotalPages(); got != exp {
		t.Fatalf("expected TotalPages() to return %d; got %d", exp, got)
	}
}

func TestAllocatorFatalErrors(t *testing.T) {
	specs := []struct {
		name   string
		fn     func(a *Allocator)
		expErr *kernel.Error
	}{
		{
			"add memory",
			func(a *Allocator) {
				if err := a.AddMemory(0x10000, 0x1000); err != errAddMemoryUnsupported {
					t.Errorf("expected AddMemory to return errAddMemoryUnsupported; got %v", err)
				}
			},
			errAddMemoryUnsupported,
		},
		{
			"dealloc pages",
			func(a *Allocator) { a.DeallocPages(0x4000, 1) },
			errDeallocPagesUnsupported,
		},
		{
			"dealloc without alloc",
			func(a *Allocator) { a.Dealloc(0x1000, mm.Layout{Size: 16, Align: 8}) },
			errDeallocUnderflow,
		},
		{
			"init with region wrapping around",
			func(a *Allocator) { a.Init(^uintptr(0)-0xfff, 0x2000) },
			errRegionOverflow,
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			trapped := trapPanics(t)

			a := New(0x1000)
			a.Init(0x1000, 0x4000)
			a.AllocPages(1, 0x1000)
			before := a

			spec.fn(&a)

			if len(*trapped) != 1 || (*trapped)[0] != spec.expErr {
				t.Fatalf("expected a single fatal error %v; got %v", spec.expErr, *trapped)
			}

			if a != before {
				t.Fatalf("expected the allocator to be left untouched; before %+v, after %+v", before, a)
			}
		})
	}
}

func TestNewWithInvalidPageSize(t *testing.T) {
	trapped := trapPanics(t)

	a := New(0x1800)

	if len(*trapped) != 1 || (*trapped)[0] != errInvalidPageSize {
		t.Fatalf("expected a single fatal error %v; got %v", errInvalidPageSize, *trapped)
	}

	if exp, got := mm.PageSize, a.PageSize(); got != exp {
		t.Fatalf("expected page size to fall back to %d; got %d", exp, got)
	}
}
