package wasmbin

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits bounds a memory in 64KiB pages. A nil Max means unbounded.
type Limits struct {
	Max *uint32
	Min uint32
}

// Import describes a function or memory import. Function imports use
// TypeIdx; memory imports use Memory.
type Import struct {
	Memory  *Limits
	Module  string
	Name    string
	TypeIdx uint32
	Kind    byte
}

// Func is a defined function. Body must end with the end opcode; Code.Bytes
// takes care of that.
type Func struct {
	Locals  []ValType
	Body    []byte
	TypeIdx uint32
}

// Global is an i32 global initialized with a constant.
type Global struct {
	Init    int32
	Mutable bool
}

// Export exposes a function, memory or global by index.
type Export struct {
	Name  string
	Index uint32
	Kind  byte
}

// Data is an active segment copied into memory 0 at Offset.
type Data struct {
	Bytes  []byte
	Offset uint32
}

// Module is a core module. Function indices count imported functions first.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Limits
	Globals  []Global
	Exports  []Export
	Data     []Data
}

// AddType appends a signature, reusing an identical one, and returns its index.
func (m *Module) AddType(params, results []ValType) uint32 {
	for i, t := range m.Types {
		if sameTypes(t.Params, params) && sameTypes(t.Results, results) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, FuncType{Params: params, Results: results})
	return uint32(len(m.Types) - 1)
}

// ImportedFuncs returns the number of imported functions.
func (m *Module) ImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

func sameTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := &writer{}

	w.U32LE(Magic)
	w.U32LE(Version)

	if len(m.Types) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(funcTypeByte)
			sec.ValTypes(ft.Params)
			sec.ValTypes(ft.Results)
		}
		w.section(SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.Name(imp.Module)
			sec.Name(imp.Name)
			sec.Byte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				sec.U32(imp.TypeIdx)
			case KindMemory:
				limits := Limits{}
				if imp.Memory != nil {
					limits = *imp.Memory
				}
				sec.Limits(limits)
			}
		}
		w.section(SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Funcs)))
		for _, fn := range m.Funcs {
			sec.U32(fn.TypeIdx)
		}
		w.section(SectionFunction, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			sec.Limits(mem)
		}
		w.section(SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.Byte(byte(I32))
			if g.Mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			sec.Byte(opI32Const)
			sec.S32(g.Init)
			sec.Byte(opEnd)
		}
		w.section(SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.Name(exp.Name)
			sec.Byte(exp.Kind)
			sec.U32(exp.Index)
		}
		w.section(SectionExport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Funcs)))
		for _, fn := range m.Funcs {
			body := &writer{}
			body.U32(uint32(len(fn.Locals)))
			for _, l := range fn.Locals {
				body.U32(1)
				body.Byte(byte(l))
			}
			body.WriteBytes(fn.Body)
			sec.U32(uint32(len(body.Bytes())))
			sec.WriteBytes(body.Bytes())
		}
		w.section(SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := &writer{}
		sec.U32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.U32(0) // active, memory 0
			sec.Byte(opI32Const)
			sec.S32(int32(d.Offset))
			sec.Byte(opEnd)
			sec.U32(uint32(len(d.Bytes)))
			sec.WriteBytes(d.Bytes)
		}
		w.section(SectionData, sec.Bytes())
	}

	return w.Bytes()
}
