package kfmt

import "io"

// ringBufferSize is large enough to hold the output of the boot-time memory
// reports printed before a console is attached. It must be a power of 2.
const ringBufferSize = 2048

// ringBuffer is a fixed-size byte queue that keeps the most recent
// ringBufferSize-1 bytes written to it. Older bytes are silently dropped.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write appends p to the buffer, overwriting the oldest unread bytes if the
// buffer is full. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) unread bytes into p. Data that wraps around the end
// of the buffer is returned by two consecutive calls. Read returns io.EOF once
// the buffer is drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	spanEnd := rb.wIndex
	if rb.rIndex > rb.wIndex {
		spanEnd = ringBufferSize
	}

	n := copy(p, rb.buffer[rb.rIndex:spanEnd])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}
