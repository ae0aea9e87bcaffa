package wasmbin

// Code builds a function body. Methods append one instruction each and
// return the receiver so bodies read top to bottom.
type Code struct {
	w writer
}

// NewCode returns an empty body.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the body terminated by end.
func (c *Code) Bytes() []byte {
	out := append([]byte(nil), c.w.Bytes()...)
	return append(out, opEnd)
}

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) opIdx(b byte, idx uint32) *Code {
	c.w.Byte(b)
	c.w.U32(idx)
	return c
}

// memop writes a load/store with its alignment (log2) and offset.
func (c *Code) memop(b byte, align, offset uint32) *Code {
	c.w.Byte(b)
	c.w.U32(align)
	c.w.U32(offset)
	return c
}

func (c *Code) Block() *Code { c.w.Byte(opBlock); return c.op(blockTypeVoid) }
func (c *Code) Loop() *Code  { c.w.Byte(opLoop); return c.op(blockTypeVoid) }
func (c *Code) If() *Code    { c.w.Byte(opIf); return c.op(blockTypeVoid) }
func (c *Code) Else() *Code  { return c.op(opElse) }
func (c *Code) End() *Code   { return c.op(opEnd) }
func (c *Code) Return() *Code {
	return c.op(opReturn)
}
func (c *Code) Drop() *Code { return c.op(opDrop) }

// Unreachable traps when executed.
func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }

func (c *Code) Br(depth uint32) *Code   { return c.opIdx(opBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.opIdx(opBrIf, depth) }
func (c *Code) Call(fn uint32) *Code    { return c.opIdx(opCall, fn) }

func (c *Code) LocalGet(i uint32) *Code  { return c.opIdx(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.opIdx(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.opIdx(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.opIdx(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.opIdx(opGlobalSet, i) }

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(opI32Const)
	c.w.S32(v)
	return c
}

func (c *Code) I32Load(offset uint32) *Code    { return c.memop(opI32Load, 2, offset) }
func (c *Code) I32Load8U(offset uint32) *Code  { return c.memop(opI32Load8U, 0, offset) }
func (c *Code) I32Load16U(offset uint32) *Code { return c.memop(opI32Load16U, 1, offset) }
func (c *Code) I32Store(offset uint32) *Code   { return c.memop(opI32Store, 2, offset) }
func (c *Code) I32Store8(offset uint32) *Code  { return c.memop(opI32Store8, 0, offset) }
func (c *Code) I32Store16(offset uint32) *Code { return c.memop(opI32Store16, 1, offset) }

func (c *Code) I32Eqz() *Code  { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code   { return c.op(opI32Eq) }
func (c *Code) I32Ne() *Code   { return c.op(opI32Ne) }
func (c *Code) I32LtU() *Code  { return c.op(opI32LtU) }
func (c *Code) I32GeU() *Code  { return c.op(opI32GeU) }
func (c *Code) I32Add() *Code  { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code  { return c.op(opI32Sub) }
func (c *Code) I32And() *Code  { return c.op(opI32And) }
func (c *Code) I32Or() *Code   { return c.op(opI32Or) }
func (c *Code) I32Shl() *Code  { return c.op(opI32Shl) }
func (c *Code) I32ShrU() *Code { return c.op(opI32ShrU) }

// MemoryCopy copies [src, src+n) to dst; operands are dst, src, n.
func (c *Code) MemoryCopy() *Code {
	c.w.Byte(opPrefixFC)
	c.w.U32(fcMemoryCopy)
	c.w.Byte(0x00)
	c.w.Byte(0x00)
	return c
}

// MemoryFill sets n bytes at dst to val; operands are dst, val, n.
func (c *Code) MemoryFill() *Code {
	c.w.Byte(opPrefixFC)
	c.w.U32(fcMemoryFill)
	c.w.Byte(0x00)
	return c
}
