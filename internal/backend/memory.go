package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Backend over fixture data. It backs the test
// suite and local development; the production backend is the host
// disassembler's plugin bridge.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]*memDoc
	order []string

	// unavailable, when set, makes every call fail with that error.
	unavailable error
}

type memProc struct {
	Procedure
	size uint64
}

type memDoc struct {
	info     DocumentInfo
	segments []Segment
	names    map[uint64]string
	types    map[uint64]TypeKind
	comments map[uint64]string
	procs    map[uint64]*memProc // keyed by entry point
	strings  []RawString
	calls    map[uint64][]uint64 // from -> targets
	callers  map[uint64][]uint64 // to -> call sites
	refsFrom map[uint64][]uint64
	refsTo   map[uint64][]uint64
	state    int // bumped on every mutation
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*memDoc)}
}

// SetUnavailable makes every subsequent call fail with err. Pass nil to
// restore normal operation. Test seam for BackendUnavailable handling.
func (m *Memory) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

func (m *Memory) doc(docID string) (*memDoc, error) {
	if m.unavailable != nil {
		return nil, m.unavailable
	}
	d, ok := m.docs[docID]
	if !ok {
		return nil, fmt.Errorf("unknown document %q", docID)
	}
	return d, nil
}

// Documents implements Backend.
func (m *Memory) Documents(ctx context.Context) ([]DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable != nil {
		return nil, m.unavailable
	}

	out := make([]DocumentInfo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.docs[id].info)
	}
	return out, nil
}

// Segments implements Backend.
func (m *Memory) Segments(ctx context.Context, docID string) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	out := make([]Segment, len(d.segments))
	copy(out, d.segments)
	return out, nil
}

// StateToken implements Backend.
func (m *Memory) StateToken(ctx context.Context, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("st-%d", d.state), nil
}

// AddressesForName implements Backend.
func (m *Memory) AddressesForName(ctx context.Context, docID, name string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}

	var out []uint64
	for addr, n := range d.names {
		if n == name {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// NameAt implements Backend.
func (m *Memory) NameAt(ctx context.Context, docID string, addr uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	return d.names[addr], nil
}

// NamedAddresses implements Backend.
func (m *Memory) NamedAddresses(ctx context.Context, docID, segment string) ([]NamedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}

	var seg *Segment
	if segment != "" {
		for i := range d.segments {
			if d.segments[i].Name == segment {
				seg = &d.segments[i]
				break
			}
		}
		if seg == nil {
			return nil, fmt.Errorf("no segment named %q", segment)
		}
	}

	var out []NamedAddress
	for addr, n := range d.names {
		if seg != nil && !seg.Contains(addr) {
			continue
		}
		out = append(out, NamedAddress{Address: addr, Name: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// TypeAt implements Backend.
func (m *Memory) TypeAt(ctx context.Context, docID string, addr uint64) (TypeKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	if k, ok := d.types[addr]; ok {
		return k, nil
	}
	return TypeUndefined, nil
}

// CommentAt implements Backend.
func (m *Memory) CommentAt(ctx context.Context, docID string, addr uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	return d.comments[addr], nil
}

// ProcedureAt implements Backend.
func (m *Memory) ProcedureAt(ctx context.Context, docID string, addr uint64) (*Procedure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	for entry, p := range d.procs {
		if addr == entry || (addr > entry && addr < entry+p.size) {
			cp := p.Procedure
			return &cp, nil
		}
	}
	return nil, nil
}

// Strings implements Backend. The real host primitive is minutes-scale on
// large binaries; here it is just a copy.
func (m *Memory) Strings(ctx context.Context, docID string) ([]RawString, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	out := make([]RawString, len(d.strings))
	copy(out, d.strings)
	return out, nil
}

// Callees implements Backend.
func (m *Memory) Callees(ctx context.Context, docID string, addr uint64) ([]uint64, error) {
	return m.edges(docID, addr, false)
}

// Callers implements Backend.
func (m *Memory) Callers(ctx context.Context, docID string, addr uint64) ([]uint64, error) {
	return m.edges(docID, addr, true)
}

func (m *Memory) edges(docID string, addr uint64, reverse bool) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}

	src := d.calls
	if reverse {
		src = d.callers
	}
	out := make([]uint64, len(src[addr]))
	copy(out, src[addr])
	return out, nil
}

// ReferencesTo implements Backend.
func (m *Memory) ReferencesTo(ctx context.Context, docID string, addr uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(d.refsTo[addr]))
	copy(out, d.refsTo[addr])
	return out, nil
}

// ReferencesFrom implements Backend.
func (m *Memory) ReferencesFrom(ctx context.Context, docID string, addr uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(d.refsFrom[addr]))
	copy(out, d.refsFrom[addr])
	return out, nil
}

// Decompile implements Backend with a canned rendering.
func (m *Memory) Decompile(ctx context.Context, docID string, addr uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	name := d.names[addr]
	if name == "" {
		name = fmt.Sprintf("sub_%x", addr)
	}
	return fmt.Sprintf("int %s(void) {\n    // 0x%x\n}\n", name, addr), nil
}

// Disassemble implements Backend with a canned rendering.
func (m *Memory) Disassemble(ctx context.Context, docID string, addr uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.doc(docID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%x: ret\n", addr), nil
}

// SetComment implements Backend.
func (m *Memory) SetComment(ctx context.Context, docID string, addr uint64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return err
	}
	if text == "" {
		delete(d.comments, addr)
	} else {
		d.comments[addr] = text
	}
	d.state++
	return nil
}

// SetName implements Backend.
func (m *Memory) SetName(ctx context.Context, docID string, addr uint64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return err
	}
	if name == "" {
		delete(d.names, addr)
	} else {
		d.names[addr] = name
	}
	d.state++
	return nil
}

// MarkType implements Backend.
func (m *Memory) MarkType(ctx context.Context, docID string, addr uint64, kind TypeKind, length int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return err
	}
	if !ValidTypeKind(kind) {
		return fmt.Errorf("unknown data type %q", kind)
	}
	if kind == TypeUndefined {
		delete(d.types, addr)
	} else {
		d.types[addr] = kind
	}
	d.state++
	return nil
}

// Rebase implements Backend. Every address in the document shifts by the
// base delta; the document ID is preserved.
func (m *Memory) Rebase(ctx context.Context, docID string, newBase uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.doc(docID)
	if err != nil {
		return err
	}

	old := d.info.BaseAddress
	if newBase == old {
		return nil
	}

	shift := func(addr uint64) uint64 { return addr - old + newBase }

	// Refuse shifts that would wrap the address space.
	for _, seg := range d.segments {
		if newBase > old {
			delta := newBase - old
			if seg.End+delta < seg.End {
				return fmt.Errorf("rebase to 0x%x would wrap segment %s", newBase, seg.Name)
			}
		} else {
			delta := old - newBase
			if seg.Start < delta {
				return fmt.Errorf("rebase to 0x%x would wrap segment %s", newBase, seg.Name)
			}
		}
	}

	for i := range d.segments {
		d.segments[i].Start = shift(d.segments[i].Start)
		d.segments[i].End = shift(d.segments[i].End)
	}
	d.names = shiftKeys(d.names, shift)
	d.types = shiftKeys(d.types, shift)
	d.comments = shiftKeys(d.comments, shift)

	procs := make(map[uint64]*memProc, len(d.procs))
	for entry, p := range d.procs {
		p.EntryPoint = shift(entry)
		procs[p.EntryPoint] = p
	}
	d.procs = procs

	for i := range d.strings {
		d.strings[i].Address = shift(d.strings[i].Address)
	}
	d.calls = shiftEdges(d.calls, shift)
	d.callers = shiftEdges(d.callers, shift)
	d.refsFrom = shiftEdges(d.refsFrom, shift)
	d.refsTo = shiftEdges(d.refsTo, shift)

	d.info.BaseAddress = newBase
	d.info.EntryPoint = shift(d.info.EntryPoint)
	d.state++
	return nil
}

func shiftKeys[V any](in map[uint64]V, shift func(uint64) uint64) map[uint64]V {
	out := make(map[uint64]V, len(in))
	for k, v := range in {
		out[shift(k)] = v
	}
	return out
}

func shiftEdges(in map[uint64][]uint64, shift func(uint64) uint64) map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(in))
	for k, vs := range in {
		nvs := make([]uint64, len(vs))
		for i, v := range vs {
			nvs[i] = shift(v)
		}
		out[shift(k)] = nvs
	}
	return out
}
