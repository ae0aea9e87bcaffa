package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseCompile     Phase = "compile"     // module compilation
	PhaseLink        Phase = "link"        // memory and export binding
	PhaseInstantiate Phase = "instantiate" // import resolution and start
	PhaseMarshal     Phase = "marshal"     // strings and argv in linear memory
	PhaseProtocol    Phase = "protocol"    // channel packets
	PhaseSchedule    Phase = "schedule"    // real-time stepping
	PhaseRuntime     Phase = "runtime"     // calls into a live instance
	PhaseLoad        Phase = "load"        // program images and config files
	PhaseScript      Phase = "script"      // keypad automation
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedModule   Kind = "malformed_module"
	KindInstantiation     Kind = "instantiation"
	KindLink              Kind = "link"
	KindMissingImport     Kind = "missing_import"
	KindBufferOverflow    Kind = "buffer_overflow"
	KindMalformedString   Kind = "malformed_string"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindTrap              Kind = "trap"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindSignatureMismatch Kind = "signature_mismatch"
)

// Sentinels for errors.Is. Matching compares Phase and Kind only.
var (
	ErrCompile         = &Error{Phase: PhaseCompile, Kind: KindMalformedModule}
	ErrInstantiation   = &Error{Phase: PhaseInstantiate, Kind: KindInstantiation}
	ErrLink            = &Error{Phase: PhaseLink, Kind: KindLink}
	ErrBufferOverflow  = &Error{Phase: PhaseMarshal, Kind: KindBufferOverflow}
	ErrMalformedString = &Error{Phase: PhaseMarshal, Kind: KindMalformedString}
	ErrNotInitialized  = &Error{Phase: PhaseRuntime, Kind: KindNotInitialized}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.WitType != "" {
		b.WriteString(": WIT type ")
		b.WriteString(e.WitType)
	}

	if e.Detail != "" {
		if e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the export or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Bootstrap failures. None of these are retried: a malformed or
// incompatible binary cannot correct itself.

// CompileError creates an error for a module that failed to compile
func CompileError(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindMalformedModule,
		Detail: "compile module",
		Cause:  cause,
	}
}

// InstantiationError creates an error for a module whose imports could not
// be satisfied or whose start function failed
func InstantiationError(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// LinkError creates an error for a module that cannot be bound to the
// shared memory or lacks a required entry point
func LinkError(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindLink,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Marshaling contract violations

// BufferOverflow creates an error for a write that does not fit the buffer
func BufferOverflow(ptr uint32, need, avail int) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindBufferOverflow,
		Detail: fmt.Sprintf("%d bytes at 0x%x exceed %d bytes available", need, ptr, avail),
		Value:  ptr,
	}
}

// MalformedString creates an error for a string that cannot be decoded
func MalformedString(ptr uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindMalformedString,
		Detail: fmt.Sprintf("string at 0x%x: %s", ptr, detail),
		Value:  ptr,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d out of bounds (size %d)", offset, length, size),
		Value:  offset,
	}
}

// Trap wraps a failure raised while executing an export
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{export},
		Detail: "call failed",
		Cause:  cause,
	}
}

// SignatureMismatch creates an error for an export whose wasm signature
// does not match the declared contract
func SignatureMismatch(export, witType, got string) *Error {
	return &Error{
		Phase:   PhaseLink,
		Kind:    KindSignatureMismatch,
		Path:    []string{export},
		WitType: witType,
		Detail:  "module declares " + got,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "wasi_snapshot_preview1"
	Function string // e.g., "fd_write"
}

// MissingImportsError is returned when the module imports functions that
// neither the WASI shim nor the caller provides
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func parseImportKey(key string) (module, function string) {
	mod, fn, found := strings.Cut(key, "#")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	// Group by module for cleaner output
	byMod := make(map[string][]string)
	var modOrder []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			modOrder = append(modOrder, imp.Module)
		}
		byMod[imp.Module] = append(byMod[imp.Module], imp.Function)
	}

	for _, mod := range modOrder {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byMod[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// NotInitialized creates a not-initialized error for a VM used before it is ready
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a loading error for program images and configuration
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
