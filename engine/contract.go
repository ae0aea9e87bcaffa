package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/agc-bridge/errors"
)

// CoreWIT declares the exports the bridge calls. Entries marked optional
// may be absent; the rest must exist with these core parameters. Entries
// marked discard may return anything, since the bridge drops their results;
// all others must return exactly the declared result.
const CoreWIT = `
	version: func() -> u32;                        // optional
	packet_write: func(channel: u32, value: u32);  // discard
	packet_read: func() -> u32;
	cpu_step: func(steps: u32);                    // discard
	cpu_reset: func();                             // discard
	get_erasable_ptr: func() -> u32;
	set_fixed: func(ptr: u32);                     // discard
	malloc: func(size: u32) -> u32;
	free: func(ptr: u32);                          // discard
`

// ExportSpec is one declared export.
type ExportSpec struct {
	Name     string
	Params   []wit.Type
	Results  []wit.Type
	Optional bool
	// Discard accepts any result list from the module.
	Discard bool
}

// Contract is the parsed export declaration set, in declaration order.
type Contract struct {
	Exports []ExportSpec
}

var (
	defaultContract     *Contract
	defaultContractOnce sync.Once
)

// DefaultContract returns the parsed CoreWIT.
func DefaultContract() *Contract {
	defaultContractOnce.Do(func() {
		c, err := ParseContract(CoreWIT)
		if err != nil {
			panic(fmt.Sprintf("engine: invalid core contract: %v", err))
		}
		defaultContract = c
	})
	return defaultContract
}

var funcPattern = regexp.MustCompile(`(?m)^\s*([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?;[ \t]*(?://([^\n]*))?`)

// ParseContract extracts export signatures from WIT function declarations.
// Pattern: name: func(params) -> result; followed by an optional comment
// holding the markers "optional" and "discard", separated by commas or spaces.
func ParseContract(witText string) (*Contract, error) {
	c := &Contract{}
	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		spec := ExportSpec{Name: match[1]}
		for _, marker := range strings.FieldsFunc(match[4], func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			switch marker {
			case "optional":
				spec.Optional = true
			case "discard":
				spec.Discard = true
			}
		}

		if params := strings.TrimSpace(match[2]); params != "" {
			for _, p := range strings.Split(params, ",") {
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					typStr = p[idx+1:]
				}
				t, err := wit.ParseType(strings.TrimSpace(typStr))
				if err != nil {
					return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "parse param type "+typStr)
				}
				spec.Params = append(spec.Params, t)
			}
		}

		if result := strings.TrimSpace(match[3]); result != "" && result != "()" {
			t, err := wit.ParseType(result)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "parse result type "+result)
			}
			spec.Results = []wit.Type{t}
		}

		c.Exports = append(c.Exports, spec)
	}

	if len(c.Exports) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLink, "no functions found in WIT text")
	}
	return c, nil
}

// Lookup returns the declared export by name.
func (c *Contract) Lookup(name string) (ExportSpec, bool) {
	for _, s := range c.Exports {
		if s.Name == name {
			return s, true
		}
	}
	return ExportSpec{}, false
}

// coreType flattens a scalar WIT type to its core value type.
func coreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, fmt.Errorf("type %s has no single core representation", witName(t))
}

func coreTypes(types []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(types))
	for _, t := range types {
		vt, err := coreType(t)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

func witName(t wit.Type) string {
	switch t.(type) {
	case nil:
		return "()"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	}
	return fmt.Sprintf("%T", t)
}

// Signature renders the export in WIT syntax.
func (s ExportSpec) Signature() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = witName(p)
	}
	sig := "func(" + strings.Join(params, ", ") + ")"
	if len(s.Results) > 0 {
		sig += " -> " + witName(s.Results[0])
	}
	return sig
}

// Validate checks the compiled module's exports against the contract.
func (c *Contract) Validate(compiled wazero.CompiledModule) error {
	exports := compiled.ExportedFunctions()
	for _, spec := range c.Exports {
		def, ok := exports[spec.Name]
		if !ok {
			if spec.Optional {
				continue
			}
			return errors.LinkError("module does not export %q", spec.Name)
		}

		params, err := coreTypes(spec.Params)
		if err != nil {
			return errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, spec.Name)
		}
		results, err := coreTypes(spec.Results)
		if err != nil {
			return errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, spec.Name)
		}

		resultsOK := spec.Discard || sameValueTypes(def.ResultTypes(), results)
		if !sameValueTypes(def.ParamTypes(), params) || !resultsOK {
			mismatch := errors.SignatureMismatch(spec.Name, spec.Signature(),
				coreSignature(def.ParamTypes(), def.ResultTypes()))
			return errors.New(errors.PhaseLink, errors.KindLink).
				Path(spec.Name).
				Detail("export %q has the wrong signature", spec.Name).
				Cause(mismatch).
				Build()
		}
	}
	return nil
}

func sameValueTypes(a, b []api.ValueType) bool {
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

func coreSignature(params, results []api.ValueType) string {
	names := func(types []api.ValueType) string {
		s := make([]string, len(types))
		for i, t := range types {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, ", ")
	}
	sig := "(" + names(params) + ")"
	if len(results) > 0 {
		sig += " -> (" + names(results) + ")"
	}
	return sig
}
