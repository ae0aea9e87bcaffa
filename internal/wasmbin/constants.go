package wasmbin

// Binary format header.
const (
	Magic   uint32 = 0x6D736100 // "\0asm"
	Version uint32 = 0x01
)

// Section IDs, emitted in increasing order.
const (
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Import/export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// ValType is a core value type encoding.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

const (
	funcTypeByte  byte = 0x60
	blockTypeVoid byte = 0x40
)

// Opcodes used by Code.
const (
	opUnreachable byte   = 0x00
	opBlock       byte   = 0x02
	opLoop        byte   = 0x03
	opIf          byte   = 0x04
	opElse        byte   = 0x05
	opEnd         byte   = 0x0B
	opBr          byte   = 0x0C
	opBrIf        byte   = 0x0D
	opReturn      byte   = 0x0F
	opCall        byte   = 0x10
	opDrop        byte   = 0x1A
	opLocalGet    byte   = 0x20
	opLocalSet    byte   = 0x21
	opLocalTee    byte   = 0x22
	opGlobalGet   byte   = 0x23
	opGlobalSet   byte   = 0x24
	opI32Load     byte   = 0x28
	opI32Load8U   byte   = 0x2D
	opI32Load16U  byte   = 0x2F
	opI32Store    byte   = 0x36
	opI32Store8   byte   = 0x3A
	opI32Store16  byte   = 0x3B
	opI32Const    byte   = 0x41
	opI32Eqz      byte   = 0x45
	opI32Eq       byte   = 0x46
	opI32Ne       byte   = 0x47
	opI32LtU      byte   = 0x49
	opI32GeU      byte   = 0x4F
	opI32Add      byte   = 0x6A
	opI32Sub      byte   = 0x6B
	opI32And      byte   = 0x71
	opI32Or       byte   = 0x72
	opI32Shl      byte   = 0x74
	opI32ShrU     byte   = 0x76
	opPrefixFC    byte   = 0xFC
	fcMemoryCopy  uint32 = 10
	fcMemoryFill  uint32 = 11
)
