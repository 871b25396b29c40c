// Package wire implements the framed byte codec underlying the PostgreSQL
// v3 frontend/backend protocol: big-endian integers, C-strings, and the
// tag+length+payload message envelope.
package wire

import (
	"encoding/binary"

	"github.com/valyala/bytebufferpool"
)

// PacketWriter accumulates bytes for a single outgoing message. A writer
// can be reused across sends: Flush returns the framed message in a newly
// allocated slice and resets the internal buffer.
type PacketWriter struct {
	buf *bytebufferpool.ByteBuffer
}

// NewPacketWriter returns a writer with a buffer drawn from the shared
// bytebufferpool, so repeated Connection startup/shutdown cycles don't
// leave garbage for the GC.
func NewPacketWriter() *PacketWriter {
	return &PacketWriter{buf: bytebufferpool.Get()}
}

// Release returns the writer's buffer to the shared pool. The writer must
// not be used afterwards.
func (w *PacketWriter) Release() {
	bytebufferpool.Put(w.buf)
	w.buf = nil
}

// Int16 appends a big-endian signed 16-bit integer.
func (w *PacketWriter) Int16(v int16) *PacketWriter {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	w.buf.Write(b[:])
	return w
}

// Int32 appends a big-endian signed 32-bit integer.
func (w *PacketWriter) Int32(v int32) *PacketWriter {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
	return w
}

// Bytes appends raw bytes verbatim.
func (w *PacketWriter) Bytes(p []byte) *PacketWriter {
	w.buf.Write(p)
	return w
}

// String appends a UTF-8 string with no terminator.
func (w *PacketWriter) String(s string) *PacketWriter {
	w.buf.WriteString(s)
	return w
}

// CString appends a UTF-8 string followed by a 0x00 terminator.
func (w *PacketWriter) CString(s string) *PacketWriter {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	return w
}

// Len returns the number of bytes accumulated so far.
func (w *PacketWriter) Len() int {
	return w.buf.Len()
}

// Flush produces a framed message from the accumulated buffer and clears
// it for the next send. When tag is non-zero it is written as the leading
// message-type byte. The 4-byte big-endian length prefix counts itself
// plus the payload, but never the tag, per the v3 wire format.
func (w *PacketWriter) Flush(tag byte) []byte {
	payload := w.buf.Bytes()
	hasTag := tag != 0

	headerLen := 4
	total := headerLen + len(payload)
	if hasTag {
		total++
	}

	out := make([]byte, total)
	offset := 0
	if hasTag {
		out[0] = tag
		offset = 1
	}
	binary.BigEndian.PutUint32(out[offset:offset+4], uint32(headerLen+len(payload)))
	copy(out[offset+4:], payload)

	w.buf.Reset()
	return out
}
