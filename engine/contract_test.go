package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/internal/wasmbin"
)

func TestParseContract_Default(t *testing.T) {
	c := DefaultContract()
	if len(c.Exports) != 9 {
		t.Fatalf("expected 9 exports, got %d", len(c.Exports))
	}

	v, ok := c.Lookup(ExportVersion)
	if !ok || !v.Optional {
		t.Errorf("version should be optional: %+v", v)
	}
	if v.Signature() != "func() -> u32" {
		t.Errorf("version signature = %q", v.Signature())
	}

	pw, ok := c.Lookup(ExportPacketWrite)
	if !ok || pw.Optional {
		t.Fatalf("packet_write should be required: %+v", pw)
	}
	if len(pw.Params) != 2 || len(pw.Results) != 0 {
		t.Errorf("packet_write params=%d results=%d", len(pw.Params), len(pw.Results))
	}
	if pw.Signature() != "func(u32, u32)" {
		t.Errorf("packet_write signature = %q", pw.Signature())
	}

	for _, name := range []string{ExportPacketWrite, ExportCPUStep, ExportCPUReset, ExportSetFixed, ExportFree} {
		if s, _ := c.Lookup(name); !s.Discard {
			t.Errorf("%s results should be discarded", name)
		}
	}
	for _, name := range []string{ExportPacketRead, ExportErasablePtr, ExportMalloc, ExportVersion} {
		if s, _ := c.Lookup(name); s.Discard {
			t.Errorf("%s result is used and must match", name)
		}
	}

	if _, ok := c.Lookup("main"); ok {
		t.Error("main is not part of the contract")
	}
}

func TestParseContract_Errors(t *testing.T) {
	if _, err := ParseContract("nothing here"); err == nil {
		t.Error("expected error for text without functions")
	}
	if _, err := ParseContract("f: func(x: not-a-type);"); err == nil {
		t.Error("expected error for unparseable type")
	}
}

func TestContract_ValidateSignature(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	m := &wasmbin.Module{}
	ty := m.AddType([]wasmbin.ValType{wasmbin.I64}, nil)
	m.Funcs = []wasmbin.Func{{TypeIdx: ty, Body: wasmbin.NewCode().Bytes()}}
	m.Exports = []wasmbin.Export{{Name: "cpu_step", Kind: wasmbin.KindFunc}}

	compiled, err := r.CompileModule(ctx, m.Encode())
	if err != nil {
		t.Fatalf("CompileModule failed: %v", err)
	}

	c, err := ParseContract("cpu_step: func(steps: u32);")
	if err != nil {
		t.Fatalf("ParseContract failed: %v", err)
	}
	err = c.Validate(compiled)
	if !errors.Is(err, errors.ErrLink) {
		t.Fatalf("expected ErrLink, got %v", err)
	}
	if !strings.Contains(err.Error(), "(i64)") {
		t.Errorf("error should show the module signature: %v", err)
	}

	var mismatch *errors.Error
	if !errors.As(err, &mismatch) || mismatch.Kind != errors.KindLink {
		t.Errorf("unexpected error chain %v", err)
	}

	c, _ = ParseContract("cpu_step: func(steps: u64);")
	if err := c.Validate(compiled); err != nil {
		t.Errorf("u64 should match i64: %v", err)
	}
}

func TestParseContract_Markers(t *testing.T) {
	c, err := ParseContract(`
		a: func();                   // optional, discard
		b: func(x: u32) -> u32;      // discard
		c: func();
	`)
	if err != nil {
		t.Fatalf("ParseContract failed: %v", err)
	}
	a, _ := c.Lookup("a")
	b, _ := c.Lookup("b")
	cc, _ := c.Lookup("c")
	if !a.Optional || !a.Discard {
		t.Errorf("a = %+v", a)
	}
	if b.Optional || !b.Discard {
		t.Errorf("b = %+v", b)
	}
	if cc.Optional || cc.Discard {
		t.Errorf("c = %+v", cc)
	}
}

func TestContract_ValidateDiscardedResults(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compile := func(params, results []wasmbin.ValType, body *wasmbin.Code) wazero.CompiledModule {
		t.Helper()
		m := &wasmbin.Module{}
		ty := m.AddType(params, results)
		m.Funcs = []wasmbin.Func{{TypeIdx: ty, Body: body.Bytes()}}
		m.Exports = []wasmbin.Export{{Name: "cpu_step", Kind: wasmbin.KindFunc}}
		compiled, err := r.CompileModule(ctx, m.Encode())
		if err != nil {
			t.Fatalf("CompileModule failed: %v", err)
		}
		return compiled
	}

	c, err := ParseContract("cpu_step: func(steps: u32); // discard")
	if err != nil {
		t.Fatalf("ParseContract failed: %v", err)
	}

	// a core that reports cycles executed from cpu_step
	withResult := compile([]wasmbin.ValType{wasmbin.I32}, []wasmbin.ValType{wasmbin.I32}, wasmbin.NewCode().I32Const(0))
	if err := c.Validate(withResult); err != nil {
		t.Errorf("extra result should be accepted: %v", err)
	}

	wrongParam := compile([]wasmbin.ValType{wasmbin.I64}, []wasmbin.ValType{wasmbin.I32}, wasmbin.NewCode().I32Const(0))
	if err := c.Validate(wrongParam); !errors.Is(err, errors.ErrLink) {
		t.Errorf("param mismatch must still fail, got %v", err)
	}

	strict, _ := ParseContract("cpu_step: func(steps: u32);")
	if err := strict.Validate(withResult); !errors.Is(err, errors.ErrLink) {
		t.Errorf("strict entry should reject the extra result, got %v", err)
	}
}
