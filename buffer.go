package reactor

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

var crlf = []byte("\r\n")

const (
	bufferPrependSize  = 8
	bufferInitialSize  = 1024
)

// Buffer is a growable byte buffer for non-blocking socket I/O, laid out as
// [prepend region][readable bytes][writable space]. The prepend region lets
// callers cheaply stamp a fixed-size header (typically a length prefix) in
// front of already-serialized payload bytes without a second allocation or
// copy, at the cost of reserving bufferPrependSize bytes nobody else may use.
type Buffer struct {
	buf        []byte
	readerIdx  int
	writerIdx  int
}

// NewBuffer returns an empty Buffer with the default initial capacity.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:       make([]byte, bufferPrependSize+bufferInitialSize),
		readerIdx: bufferPrependSize,
		writerIdx: bufferPrependSize,
	}
}

// ReadableBytes is the number of bytes available to Read/Peek.
func (b *Buffer) ReadableBytes() int { return b.writerIdx - b.readerIdx }

// WritableBytes is the number of bytes available before a grow is needed.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIdx }

// PrependableBytes is the space available before the readable region.
func (b *Buffer) PrependableBytes() int { return b.readerIdx }

// Peek returns the readable region without consuming it. The returned slice
// aliases the buffer and is invalidated by the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIdx:b.writerIdx]
}

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIdx += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll consumes the entire readable region, resetting the cursors so
// the next Append reuses the prepend layout instead of growing further.
func (b *Buffer) RetrieveAll() {
	b.readerIdx = bufferPrependSize
	b.writerIdx = bufferPrependSize
}

// RetrieveAsBytes consumes and returns a copy of the entire readable region.
func (b *Buffer) RetrieveAsBytes() []byte {
	out := make([]byte, b.ReadableBytes())
	copy(out, b.Peek())
	b.RetrieveAll()
	return out
}

// RetrieveString consumes and returns the readable region as a string.
func (b *Buffer) RetrieveString() string {
	return string(b.RetrieveAsBytes())
}

// FindCRLF reports the offset of the first "\r\n" in the readable region,
// relative to Peek(), for line-based protocols built atop the raw buffer.
// The second return is false if no complete line terminator is present yet.
func (b *Buffer) FindCRLF() (int, bool) {
	idx := bytes.Index(b.Peek(), crlf)
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// RetrieveUntil consumes n bytes from the front of the readable region.
// Callers typically pass the offset FindCRLF returned plus len("\r\n") to
// also consume the line terminator along with the line itself.
func (b *Buffer) RetrieveUntil(n int) {
	b.Retrieve(n)
}

// Append appends data to the writable region, growing the buffer if needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	b.writerIdx += copy(b.buf[b.writerIdx:], data)
}

// Prepend writes data immediately before the readable region; data must fit
// within PrependableBytes (callers typically prepend a fixed-size header
// right after an Append of the payload, per the constructor's reserved
// bufferPrependSize).
func (b *Buffer) Prepend(data []byte) error {
	if len(data) > b.PrependableBytes() {
		return errors.New("reactor: not enough prependable space")
	}
	b.readerIdx -= len(data)
	copy(b.buf[b.readerIdx:], data)
	return nil
}

// PrependInt32 prepends a big-endian uint32, the common length-prefix idiom.
func (b *Buffer) PrependInt32(v uint32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return b.Prepend(tmp[:])
}

// PeekInt32 reads (without consuming) a big-endian uint32 from the front of
// the readable region.
func (b *Buffer) PeekInt32() (uint32, bool) {
	if b.ReadableBytes() < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b.buf[b.readerIdx:]), true
}

func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.PrependableBytes()+b.WritableBytes() >= bufferPrependSize+n {
		// Slide the readable region down to the prepend boundary to reclaim
		// space already consumed, rather than growing.
		readable := b.ReadableBytes()
		copy(b.buf[bufferPrependSize:], b.buf[b.readerIdx:b.writerIdx])
		b.readerIdx = bufferPrependSize
		b.writerIdx = bufferPrependSize + readable
		return
	}
	newCap := len(b.buf)*2 + n
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.writerIdx])
	b.buf = grown
}

// extraBufSize is the size of the stack-local scratch buffer used by
// ReadFD's scatter read, sized to absorb one large datagram/read without an
// extra buffer growth round-trip in the common case.
const extraBufSize = 65536

// ReadFD reads from fd directly into the buffer, with an extra on-stack
// scratch buffer so it can consume more than is currently allocated without
// first growing the buffer speculatively. It does not use readv: a first
// read(2) fills the buffer's own writable region, and only if that region
// filled completely (suggesting more is available) does a second read(2)
// land in the scratch buffer, which is then appended.
// Returns the number of bytes read, or -1 and the error on failure
// (including the non-fatal EAGAIN for a caller to ignore).
func (b *Buffer) ReadFD(fd int) (int, error) {
	writable := b.WritableBytes()
	n, err := unix.Read(fd, b.buf[b.writerIdx:len(b.buf)])
	if err != nil {
		return -1, err
	}
	b.writerIdx += n
	if n < writable || n == 0 {
		return n, nil
	}

	var extra [extraBufSize]byte
	n2, err2 := unix.Read(fd, extra[:])
	if err2 != nil || n2 <= 0 {
		return n, nil
	}
	b.Append(extra[:n2])
	return n + n2, nil
}
