package memory

import (
	"bytes"
	"unicode/utf8"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// DecodeString reads the NUL-terminated UTF-8 string at ptr.
func DecodeString(mem agcbridge.Memory, ptr uint32) (string, error) {
	size := mem.Size()
	if ptr >= size {
		return "", errors.MalformedString(ptr, "pointer outside memory")
	}
	tail, err := mem.Read(ptr, size-ptr)
	if err != nil {
		return "", errors.MalformedString(ptr, err.Error())
	}
	n := bytes.IndexByte(tail, 0)
	if n < 0 {
		return "", errors.MalformedString(ptr, "no terminator before end of memory")
	}
	if !utf8.Valid(tail[:n]) {
		return "", errors.MalformedString(ptr, "invalid UTF-8")
	}
	return string(tail[:n]), nil
}

// EncodeString writes text at ptr and returns the number of bytes written,
// not counting the terminator. The terminator is only written when there is
// room for it, so a string that exactly fills the buffer is left unterminated.
func EncodeString(text string, mem agcbridge.Memory, ptr uint32) (int, error) {
	size := mem.Size()
	avail := 0
	if ptr < size {
		avail = int(size - ptr)
	}
	if len(text) > avail {
		return 0, errors.BufferOverflow(ptr, len(text), avail)
	}
	if err := mem.Write(ptr, []byte(text)); err != nil {
		return 0, err
	}
	if len(text) < avail {
		if err := mem.Write(ptr+uint32(len(text)), []byte{0}); err != nil {
			return 0, err
		}
	}
	return len(text), nil
}
