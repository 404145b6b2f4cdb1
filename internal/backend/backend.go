// Package backend abstracts the host disassembler's analysis session. The
// engine treats every call as a fallible remote operation: the backend owns
// disassembly, decompilation, and all ground-truth metadata; binkb only
// indexes and accelerates queries over what the backend already computed.
package backend

import "context"

// DocumentInfo describes one binary loaded and analyzed by the host.
// The ID is opaque and stable across rebase operations.
type DocumentInfo struct {
	ID             string `json:"docId"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	SavePath       string `json:"savePath,omitempty"` // host save artifact; empty if never saved
	BaseAddress    uint64 `json:"-"`
	EntryPoint     uint64 `json:"-"`
	AnalysisActive bool   `json:"analysisActive"`
}

// Segment is a named contiguous address range within a document.
// Immutable except through rebase or full re-analysis.
type Segment struct {
	Name  string `json:"name"`
	Start uint64 `json:"-"`
	End   uint64 `json:"-"` // exclusive
	Kind  string `json:"kind"` // "code", "data", "import"

	ProcedureCount int `json:"procedureCount"`
	StringCount    int `json:"stringCount"`
	NameCount      int `json:"nameCount"`
}

// Contains reports whether addr falls inside the segment.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

// NamedAddress binds a symbol name to an address.
type NamedAddress struct {
	Address uint64
	Name    string
}

// Procedure summarizes a function known to the backend.
type Procedure struct {
	EntryPoint      uint64
	Signature       string
	BasicBlockCount int
}

// RawString is one string the backend's analysis discovered.
type RawString struct {
	Address  uint64
	Segment  string
	Content  string
	Encoding string // "ascii" or "utf16"
}

// TypeKind enumerates the data type markings the backend understands.
type TypeKind string

const (
	TypeCode       TypeKind = "code"
	TypeProcedure  TypeKind = "procedure"
	TypeInt8       TypeKind = "int8"
	TypeInt16      TypeKind = "int16"
	TypeInt32      TypeKind = "int32"
	TypeInt64      TypeKind = "int64"
	TypeASCII      TypeKind = "ascii"
	TypeUnicode    TypeKind = "unicode"
	TypeUndefined  TypeKind = "undefined"
	TypeByteArray  TypeKind = "byte_array"
	TypeShortArray TypeKind = "short_array"
	TypeIntArray   TypeKind = "int_array"
)

// ValidTypeKind reports whether k is a marking the backend accepts.
func ValidTypeKind(k TypeKind) bool {
	switch k {
	case TypeCode, TypeProcedure, TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeASCII, TypeUnicode, TypeUndefined, TypeByteArray, TypeShortArray, TypeIntArray:
		return true
	}
	return false
}

// Backend is the contract the host disassembler must provide per document.
// All methods may fail with backend-specific errors; callers normalize them
// into the binkb error taxonomy. The single-threaded host bridge means
// callers must not issue unbounded concurrent calls.
type Backend interface {
	// Documents enumerates all currently loaded documents.
	Documents(ctx context.Context) ([]DocumentInfo, error)

	// Segments returns the document's segments in load order.
	Segments(ctx context.Context, docID string) ([]Segment, error)

	// StateToken returns an opaque token that changes whenever the
	// document's analysis state changes (rename, rebase, re-analysis).
	StateToken(ctx context.Context, docID string) (string, error)

	// AddressesForName returns every address bound to an exact name.
	// Empty result means not found; more than one means ambiguous.
	AddressesForName(ctx context.Context, docID, name string) ([]uint64, error)

	// NameAt returns the symbol name at addr, or "" when unnamed.
	NameAt(ctx context.Context, docID string, addr uint64) (string, error)

	// NamedAddresses lists name bindings, scoped to one segment when
	// segment is non-empty.
	NamedAddresses(ctx context.Context, docID, segment string) ([]NamedAddress, error)

	// TypeAt returns the data type marking at addr, TypeUndefined if none.
	TypeAt(ctx context.Context, docID string, addr uint64) (TypeKind, error)

	// CommentAt returns the comment at addr, or "" when absent.
	CommentAt(ctx context.Context, docID string, addr uint64) (string, error)

	// ProcedureAt returns the procedure containing addr, or nil.
	ProcedureAt(ctx context.Context, docID string, addr uint64) (*Procedure, error)

	// Strings enumerates every string in the document. Documented
	// minutes-scale cost on large binaries: call only from an explicit
	// cache build, never implicitly from a query.
	Strings(ctx context.Context, docID string) ([]RawString, error)

	// Callees returns the call targets of the procedure at addr.
	Callees(ctx context.Context, docID string, addr uint64) ([]uint64, error)

	// Callers returns the call sites targeting the procedure at addr.
	Callers(ctx context.Context, docID string, addr uint64) ([]uint64, error)

	// ReferencesTo returns addresses that reference addr.
	ReferencesTo(ctx context.Context, docID string, addr uint64) ([]uint64, error)

	// ReferencesFrom returns addresses referenced from addr.
	ReferencesFrom(ctx context.Context, docID string, addr uint64) ([]uint64, error)

	// Decompile renders pseudo-C for the procedure at addr.
	Decompile(ctx context.Context, docID string, addr uint64) (string, error)

	// Disassemble renders assembly text for the procedure at addr.
	Disassemble(ctx context.Context, docID string, addr uint64) (string, error)

	// SetComment writes a comment; immediately visible to reads.
	SetComment(ctx context.Context, docID string, addr uint64, text string) error

	// SetName writes a name binding; immediately visible to reads.
	SetName(ctx context.Context, docID string, addr uint64, name string) error

	// MarkType re-types length units at addr as kind.
	MarkType(ctx context.Context, docID string, addr uint64, kind TypeKind, length int) error

	// Rebase shifts the document's base address in place. The document
	// identity (ID) is preserved.
	Rebase(ctx context.Context, docID string, newBase uint64) error
}
