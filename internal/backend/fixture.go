package backend

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Fixture describes one document for the in-memory backend. Tests build it
// programmatically; local development loads it from a TOML file (TOML 1.0
// hex integer literals keep addresses readable).
type Fixture struct {
	Document   FixtureDocument    `toml:"document"`
	Segments   []FixtureSegment   `toml:"segment"`
	Names      []FixtureName      `toml:"name"`
	Procedures []FixtureProcedure `toml:"procedure"`
	Strings    []FixtureString    `toml:"string"`
	Calls      []FixtureCall      `toml:"call"`
	Refs       []FixtureRef       `toml:"ref"`
	Comments   []FixtureComment   `toml:"comment"`
}

// FixtureDocument carries document identity and layout.
type FixtureDocument struct {
	Name     string `toml:"name"`
	Path     string `toml:"path"`
	SavePath string `toml:"save_path"`
	Base     uint64 `toml:"base"`
	Entry    uint64 `toml:"entry"`
}

// FixtureSegment describes one segment.
type FixtureSegment struct {
	Name  string `toml:"name"`
	Start uint64 `toml:"start"`
	End   uint64 `toml:"end"`
	Kind  string `toml:"kind"`
}

// FixtureName binds a symbol name to an address.
type FixtureName struct {
	Address uint64 `toml:"address"`
	Name    string `toml:"name"`
}

// FixtureProcedure describes a function.
type FixtureProcedure struct {
	Entry       uint64 `toml:"entry"`
	Size        uint64 `toml:"size"`
	Signature   string `toml:"signature"`
	BasicBlocks int    `toml:"basic_blocks"`
}

// FixtureString is one analyzed string.
type FixtureString struct {
	Address  uint64 `toml:"address"`
	Segment  string `toml:"segment"`
	Content  string `toml:"content"`
	Encoding string `toml:"encoding"`
}

// FixtureCall is one call edge.
type FixtureCall struct {
	From uint64 `toml:"from"`
	To   uint64 `toml:"to"`
}

// FixtureRef is one non-call cross-reference edge.
type FixtureRef struct {
	From uint64 `toml:"from"`
	To   uint64 `toml:"to"`
}

// FixtureComment attaches a comment to an address.
type FixtureComment struct {
	Address uint64 `toml:"address"`
	Comment string `toml:"comment"`
}

// LoadFixtureFile parses a TOML fixture and adds it as a document.
func (m *Memory) LoadFixtureFile(path string) (string, error) {
	var f Fixture
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return "", fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return m.AddFixture(&f)
}

// AddFixture adds a document built from f and returns its doc ID.
func (m *Memory) AddFixture(f *Fixture) (string, error) {
	if len(f.Segments) == 0 {
		return "", fmt.Errorf("fixture %q has no segments", f.Document.Name)
	}

	d := &memDoc{
		info: DocumentInfo{
			ID:          uuid.New().String(),
			Name:        f.Document.Name,
			Path:        f.Document.Path,
			SavePath:    f.Document.SavePath,
			BaseAddress: f.Document.Base,
			EntryPoint:  f.Document.Entry,
		},
		names:    make(map[uint64]string),
		types:    make(map[uint64]TypeKind),
		comments: make(map[uint64]string),
		procs:    make(map[uint64]*memProc),
		calls:    make(map[uint64][]uint64),
		callers:  make(map[uint64][]uint64),
		refsFrom: make(map[uint64][]uint64),
		refsTo:   make(map[uint64][]uint64),
	}

	for _, s := range f.Segments {
		if s.End <= s.Start {
			return "", fmt.Errorf("segment %q has non-positive extent", s.Name)
		}
		kind := s.Kind
		if kind == "" {
			kind = "data"
		}
		d.segments = append(d.segments, Segment{Name: s.Name, Start: s.Start, End: s.End, Kind: kind})
	}

	for _, n := range f.Names {
		d.names[n.Address] = n.Name
	}
	for _, p := range f.Procedures {
		size := p.Size
		if size == 0 {
			size = 1
		}
		blocks := p.BasicBlocks
		if blocks == 0 {
			blocks = 1
		}
		d.procs[p.Entry] = &memProc{
			Procedure: Procedure{EntryPoint: p.Entry, Signature: p.Signature, BasicBlockCount: blocks},
			size:      size,
		}
	}
	for _, s := range f.Strings {
		enc := s.Encoding
		if enc == "" {
			enc = "ascii"
		}
		seg := s.Segment
		if seg == "" {
			seg = segmentNameFor(d.segments, s.Address)
		}
		d.strings = append(d.strings, RawString{Address: s.Address, Segment: seg, Content: s.Content, Encoding: enc})
		d.types[s.Address] = TypeASCII
	}
	sort.Slice(d.strings, func(i, j int) bool { return d.strings[i].Address < d.strings[j].Address })

	// Call edges double as cross-references, matching how the host models
	// them. Explicit refs cover data references.
	for _, c := range f.Calls {
		d.calls[c.From] = append(d.calls[c.From], c.To)
		d.callers[c.To] = append(d.callers[c.To], c.From)
		d.refsFrom[c.From] = append(d.refsFrom[c.From], c.To)
		d.refsTo[c.To] = append(d.refsTo[c.To], c.From)
	}
	for _, r := range f.Refs {
		d.refsFrom[r.From] = append(d.refsFrom[r.From], r.To)
		d.refsTo[r.To] = append(d.refsTo[r.To], r.From)
	}
	for _, c := range f.Comments {
		d.comments[c.Address] = c.Comment
	}

	// Per-segment counts shown in segment listings.
	for i := range d.segments {
		seg := &d.segments[i]
		for entry := range d.procs {
			if seg.Contains(entry) {
				seg.ProcedureCount++
			}
		}
		for _, s := range d.strings {
			if seg.Contains(s.Address) {
				seg.StringCount++
			}
		}
		for addr := range d.names {
			if seg.Contains(addr) {
				seg.NameCount++
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.info.ID] = d
	m.order = append(m.order, d.info.ID)
	return d.info.ID, nil
}

func segmentNameFor(segments []Segment, addr uint64) string {
	for _, s := range segments {
		if s.Contains(addr) {
			return s.Name
		}
	}
	return ""
}
