// Package kfmt implements allocation-free formatted output for code that runs
// before the Go allocator is available, together with the kernel panic
// handler.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize bounds the width of a formatted integer, sign included.
const numBufSize = 32

// Markers emitted in place of a directive that cannot be honored.
const (
	markMissingArg = "(MISSING)"
	markWrongType  = "%!(WRONGTYPE)"
	markNoVerb     = "%!(NOVERB)"
	markExtraArg   = "%!(EXTRA)"
)

var (
	// numBuf receives the digits of integers, filled from the right.
	numBuf [numBufSize + 1]byte

	// charBuf carries the single bytes emitted by putc.
	charBuf = []byte{0}

	// bootLog keeps Printf output until SetOutputSink installs a writer.
	bootLog ringBuffer

	// outputSink receives Printf output; nil selects bootLog.
	outputSink io.Writer
)

// SetOutputSink redirects Printf to w. Output accumulated in the boot log
// while no sink was installed is replayed into w.
func SetOutputSink(w io.Writer) {
	if outputSink = w; w == nil {
		return
	}

	var chunk [64]byte
	for {
		n, err := bootLog.Read(chunk[:])
		if err != nil {
			return
		}
		put(w, chunk[:n])
	}
}

// Printf writes formatted output to the active sink without allocating, so it
// is safe to call before the Go allocator is up. The recognized verbs are:
//
//	%s  string or []byte
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16 with lower-case digits
//	%t  bool
//	%%  literal percent sign
//
// A decimal width may precede the verb. Strings and %d are padded with spaces,
// %o and %x with zeroes. Arguments are never checked for Stringer or error
// implementations and %p is not available; both need reflection.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf is Printf with an explicit destination. A nil w targets the boot
// log.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	next := 0

	for pos := 0; pos < len(format); pos++ {
		if format[pos] != '%' {
			// Slicing format would allocate, so plain text goes out one
			// byte at a time.
			putc(w, format[pos])
			continue
		}

		width, verb, end := parseDirective(format, pos+1)
		pos = end

		switch {
		case verb == 0:
			puts(w, markNoVerb)
		case verb == '%':
			putc(w, '%')
		case !isKnownVerb(verb):
			puts(w, markNoVerb)
		case next == len(args):
			puts(w, markMissingArg)
		default:
			formatArg(w, verb, args[next], width)
			next++
		}
	}

	for ; next < len(args); next++ {
		puts(w, markExtraArg)
	}
}

// parseDirective scans the width digits and the verb that follow a '%' at
// format[from-1]. It returns the index of the verb, or len(format)-1 with a
// zero verb if the format ends first.
func parseDirective(format string, from int) (width int, verb byte, end int) {
	for end = from; end < len(format); end++ {
		ch := format[end]
		if ch < '0' || ch > '9' {
			return width, ch, end
		}
		width = width*10 + int(ch-'0')
	}

	return width, 0, len(format) - 1
}

func isKnownVerb(verb byte) bool {
	switch verb {
	case 's', 'd', 'o', 'x', 't':
		return true
	}
	return false
}

func formatArg(w io.Writer, verb byte, arg interface{}, width int) {
	switch verb {
	case 's':
		writeText(w, arg, width)
	case 'd':
		writeInt(w, arg, 10, width)
	case 'o':
		writeInt(w, arg, 8, width)
	case 'x':
		writeInt(w, arg, 16, width)
	case 't':
		writeBool(w, arg)
	}
}

func writeBool(w io.Writer, arg interface{}) {
	b, ok := arg.(bool)
	switch {
	case !ok:
		puts(w, markWrongType)
	case b:
		puts(w, "true")
	default:
		puts(w, "false")
	}
}

// writeText emits a string or []byte, right-aligned within width.
func writeText(w io.Writer, arg interface{}, width int) {
	switch text := arg.(type) {
	case string:
		pad(w, ' ', width-len(text))
		puts(w, text)
	case []byte:
		pad(w, ' ', width-len(text))
		put(w, text)
	default:
		puts(w, markWrongType)
	}
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		putc(w, ch)
	}
}

// magnitude splits any built-in integer into its absolute value and sign.
func magnitude(arg interface{}) (abs uint64, neg, ok bool) {
	var signed int64
	switch v := arg.(type) {
	case uint:
		return uint64(v), false, true
	case uint8:
		return uint64(v), false, true
	case uint16:
		return uint64(v), false, true
	case uint32:
		return uint64(v), false, true
	case uint64:
		return v, false, true
	case uintptr:
		return uint64(v), false, true
	case int:
		signed = int64(v)
	case int8:
		signed = int64(v)
	case int16:
		signed = int64(v)
	case int32:
		signed = int64(v)
	case int64:
		signed = v
	default:
		return 0, false, false
	}

	if signed < 0 {
		return uint64(-signed), true, true
	}
	return uint64(signed), false, true
}

// writeInt emits arg in the given base. Widths of numBufSize or more are
// clamped to numBufSize-1. A negative sign takes the place of the leftmost
// padding space but is always prepended to zero padding.
func writeInt(w io.Writer, arg interface{}, base uint64, width int) {
	abs, neg, ok := magnitude(arg)
	if !ok {
		puts(w, markWrongType)
		return
	}

	if width >= numBufSize {
		width = numBufSize - 1
	}

	head := len(numBuf)
	for {
		head--
		numBuf[head] = "0123456789abcdef"[abs%base]
		if abs /= base; abs == 0 {
			break
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	firstDigit := head
	for len(numBuf)-head < width {
		head--
		numBuf[head] = padCh
	}

	if neg {
		if padCh == ' ' && head < firstDigit {
			numBuf[firstDigit-1] = '-'
		} else {
			head--
			numBuf[head] = '-'
		}
	}

	put(w, numBuf[head:])
}

func putc(w io.Writer, ch byte) {
	charBuf[0] = ch
	put(w, charBuf)
}

// puts emits s without converting it to a []byte, which would allocate.
func puts(w io.Writer, s string) {
	for i := 0; i < len(s); i++ {
		putc(w, s[i])
	}
}

// put hands p to w, or to the boot log when w is nil. p is laundered through
// noEscape first: the call through the io.Writer interface otherwise makes
// escape analysis move every Printf argument slice to the heap.
func put(w io.Writer, p []byte) {
	putNoEscape(w, noEscape(unsafe.Pointer(&p)))
}

func putNoEscape(w io.Writer, ptr unsafe.Pointer) {
	p := *(*[]byte)(ptr)
	if w == nil {
		bootLog.Write(p)
		return
	}
	w.Write(p)
}

// noEscape mirrors runtime.noescape: the XOR hides the dependency between its
// input and output from escape analysis.
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
