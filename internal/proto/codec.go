package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wolfeidau/charonauth/internal/util"
)

var le = binary.LittleEndian

// reader walks a datagram with a sticky error. Once a read fails every
// subsequent read returns a zero value, so decoders check err once at the end.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte, want Tag) *reader {
	r := &reader{buf: buf}
	if got := Tag(r.u32()); r.err == nil && got != want {
		r.fail("tag %s does not match %s", got, want)
	}
	return r
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return le.Uint32(b)
}

func (r *reader) i32() int32 {
	// #nosec G115 - reinterpreting the wire bits as signed is the intent
	return int32(r.u32())
}

// blob copies n bytes out of the datagram so the caller may reuse its buffer.
func (r *reader) blob(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// blob32 reads an i32 length prefix followed by that many bytes.
func (r *reader) blob32() []byte {
	n := r.i32()
	if r.err != nil {
		return nil
	}
	if n < 0 {
		r.fail("negative length %d", n)
		return nil
	}
	return r.blob(int(n))
}

// cstring reads an ASCII string up to and including its NUL terminator.
func (r *reader) cstring() string {
	if r.err != nil {
		return ""
	}
	z := bytes.IndexByte(r.buf[r.off:], 0)
	if z < 0 {
		r.fail("string at offset %d is not NUL-terminated", r.off)
		return ""
	}
	raw := r.buf[r.off : r.off+z]
	for _, c := range raw {
		if c > 0x7F {
			r.fail("string at offset %d is not ASCII", r.off)
			return ""
		}
	}
	r.off += z + 1
	return string(raw)
}

// writer helpers; encoding is infallible.

func putTag(dst []byte, t Tag) []byte { return le.AppendUint32(dst, uint32(t)) }

func putCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

func putBlob32(dst []byte, b []byte) []byte {
	// #nosec G115 - AsInt32 clamps, reinterpretation is the wire format
	dst = le.AppendUint32(dst, uint32(util.AsInt32(len(b))))
	return append(dst, b...)
}

func putBlob8(dst []byte, b []byte) []byte {
	n := util.AsUint8(len(b))
	dst = append(dst, n)
	return append(dst, b[:n]...)
}
