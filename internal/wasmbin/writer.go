package wasmbin

import (
	"bytes"
	"encoding/binary"
)

// writer provides LEB128 and vector helpers over a byte buffer.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// U32 writes an unsigned LEB128 value.
func (w *writer) U32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// S32 writes a signed LEB128 value.
func (w *writer) S32(v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

func (w *writer) U32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) ValTypes(types []ValType) {
	w.U32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func (w *writer) Limits(l Limits) {
	if l.Max != nil {
		w.Byte(0x01)
		w.U32(l.Min)
		w.U32(*l.Max)
		return
	}
	w.Byte(0x00)
	w.U32(l.Min)
}

// section writes id, size and contents.
func (w *writer) section(id byte, contents []byte) {
	w.Byte(id)
	w.U32(uint32(len(contents)))
	w.WriteBytes(contents)
}
