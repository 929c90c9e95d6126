package main

import (
	"earlyalloc/kernel"
	"earlyalloc/kernel/kfmt"
	"earlyalloc/kernel/mm"
	"earlyalloc/kernel/mm/early"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// fillPattern is written over every byte block handed out by the allocator.
const fillPattern = 0xa5

type config struct {
	regionSize uintptr
	pageSize   uintptr
	byteAllocs []mm.Layout
	pageAllocs []uintptr
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[earlysim] error: %s\n", err.Error())
	os.Exit(1)
}

// parseLayouts parses a comma-separated list of SIZE[:ALIGN] entries.
func parseLayouts(list string) ([]mm.Layout, error) {
	var layouts []mm.Layout
	for _, entry := range strings.Split(list, ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}

		sizeStr, alignStr, hasAlign := strings.Cut(entry, ":")
		size, err := strconv.ParseUint(sizeStr, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid allocation size %q: %w", sizeStr, err)
		}

		layout := mm.Layout{Size: uintptr(size), Align: 1}
		if hasAlign {
			align, err := strconv.ParseUint(alignStr, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid alignment %q: %w", alignStr, err)
			}
			layout.Align = uintptr(align)
		}

		layouts = append(layouts, layout)
	}

	return layouts, nil
}

// parsePageCounts parses a comma-separated list of page counts.
func parsePageCounts(list string) ([]uintptr, error) {
	var counts []uintptr
	for _, entry := range strings.Split(list, ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}

		count, err := strconv.ParseUint(entry, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid page count %q: %w", entry, err)
		}
		counts = append(counts, uintptr(count))
	}

	return counts, nil
}

// run maps an anonymous region of cfg.regionSize bytes, replays the requested
// allocations against an early allocator that manages it and writes a usage
// report to w.
func run(cfg config, w io.Writer) error {
	if cfg.regionSize == 0 {
		return errors.New("region size must be greater than zero")
	}

	if !mm.IsPowerOfTwo(cfg.pageSize) {
		return fmt.Errorf("page size %d is not a power of two", cfg.pageSize)
	}

	region, err := unix.Mmap(-1, 0, int(cfg.regionSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("unable to map a %d byte region: %w", cfg.regionSize, err)
	}
	defer unix.Munmap(region)

	regionStart := uintptr(unsafe.Pointer(&region[0]))
	alloc := early.New(cfg.pageSize)
	alloc.Init(regionStart, cfg.regionSize)

	kfmt.Printf("mapped region at 0x%x, size: %d bytes (%d hardware pages)\n",
		regionStart, uint64(cfg.regionSize), mm.Size(cfg.regionSize).Pages(),
	)

	var byteFailures, pageFailures int
	for _, layout := range cfg.byteAllocs {
		addr, allocErr := alloc.Alloc(layout)
		if allocErr != nil {
			kfmt.Printf("alloc(size: %d, align: %d) failed: %s\n", layout.Size, layout.Align, allocErr.Message)
			byteFailures++
			continue
		}

		if layout.Size != 0 && !alloc.Region().Contains(addr+layout.Size-1) {
			return fmt.Errorf("block 0x%x (%d bytes) lies outside the managed region", addr, layout.Size)
		}

		kernel.Memset(addr, fillPattern, layout.Size)
		kfmt.Printf("alloc(size: %d, align: %d) -> +0x%x\n", layout.Size, layout.Align, addr-regionStart)
	}

	for _, numPages := range cfg.pageAllocs {
		addr, allocErr := alloc.AllocPages(numPages, cfg.pageSize)
		if allocErr != nil {
			kfmt.Printf("alloc_pages(%d) failed: %s\n", numPages, allocErr.Message)
			pageFailures++
			continue
		}

		if !alloc.Region().Contains(addr) {
			return fmt.Errorf("page 0x%x lies outside the managed region", addr)
		}

		kernel.Memset(addr, 0, numPages*cfg.pageSize)
		kfmt.Printf("alloc_pages(%d) -> +0x%x\n", numPages, addr-regionStart)
	}

	p := message.NewPrinter(language.English)
	printUsage(p, w, "after allocations", &alloc)

	live := len(cfg.byteAllocs) - byteFailures
	for i := 0; i < live; i++ {
		alloc.Dealloc(0, mm.Layout{})
	}
	printUsage(p, w, "after freeing byte allocations", &alloc)

	p.Fprintf(w, "failed requests: %d byte, %d page\n", byteFailures, pageFailures)
	return nil
}

func printUsage(p *message.Printer, w io.Writer, title string, alloc *early.Allocator) {
	p.Fprintf(w, "%s:\n", title)
	p.Fprintf(w, "  bytes: %d used, %d available, %d total\n", alloc.UsedBytes(), alloc.AvailableBytes(), alloc.TotalBytes())
	p.Fprintf(w, "  pages: %d used, %d available, %d total (page size %d)\n", alloc.UsedPages(), alloc.AvailablePages(), alloc.TotalPages(), alloc.PageSize())
}

func main() {
	regionKb := flag.Uint64("size", 64, "size of the simulated region in Kb")
	pageSize := flag.Uint64("page-size", uint64(mm.PageSize), "page size used for page allocations")
	byteList := flag.String("bytes", "16:8,24,64:64", "comma-separated byte allocations as SIZE[:ALIGN]")
	pageList := flag.String("pages", "1,2", "comma-separated page allocation counts")
	flag.Parse()

	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: os.Stdout, Prefix: []byte("[earlysim] ")})

	layouts, err := parseLayouts(*byteList)
	if err != nil {
		exit(err)
	}

	pageCounts, err := parsePageCounts(*pageList)
	if err != nil {
		exit(err)
	}

	cfg := config{
		regionSize: uintptr(mm.Size(*regionKb) * mm.Kb),
		pageSize:   uintptr(*pageSize),
		byteAllocs: layouts,
		pageAllocs: pageCounts,
	}

	if err = run(cfg, os.Stdout); err != nil {
		exit(err)
	}
}
