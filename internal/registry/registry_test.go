package registry

import (
	"context"
	"testing"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/logging"
)

func addDoc(t *testing.T, b *backend.Memory, name string, base uint64) string {
	t.Helper()
	docID, err := b.AddFixture(&backend.Fixture{
		Document: backend.FixtureDocument{Name: name, Path: "/bin/" + name, Base: base, Entry: base},
		Segments: []backend.FixtureSegment{
			{Name: "__text", Start: base, End: base + 0x2000, Kind: "code"},
			{Name: "__data", Start: base + 0x2000, End: base + 0x3000, Kind: "data"},
		},
		Names: []backend.FixtureName{{Address: base, Name: "main"}},
	})
	if err != nil {
		t.Fatalf("AddFixture: %v", err)
	}
	return docID
}

func TestCurrentWithNoDocuments(t *testing.T) {
	r := New(backend.NewMemory(), logging.Discard())

	_, err := r.Current(context.Background())
	if !errors.HasCode(err, errors.NoDocumentLoaded) {
		t.Fatalf("err = %v, want NO_DOCUMENT_LOADED", err)
	}
}

func TestCurrentDefaultsToFirstLoaded(t *testing.T) {
	b := backend.NewMemory()
	first := addDoc(t, b, "first", 0x1000)
	addDoc(t, b, "second", 0x100000)
	r := New(b, logging.Discard())

	cur, err := r.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != first {
		t.Errorf("current = %s, want first loaded %s", cur.ID, first)
	}
}

func TestSetCurrent(t *testing.T) {
	b := backend.NewMemory()
	addDoc(t, b, "first", 0x1000)
	second := addDoc(t, b, "second", 0x100000)
	r := New(b, logging.Discard())

	if err := r.SetCurrent(context.Background(), second); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	cur, err := r.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != second {
		t.Errorf("current = %s, want %s", cur.ID, second)
	}

	if err := r.SetCurrent(context.Background(), "nope"); !errors.HasCode(err, errors.UnknownDocument) {
		t.Fatalf("err = %v, want UNKNOWN_DOCUMENT", err)
	}
}

func TestScope(t *testing.T) {
	b := backend.NewMemory()
	first := addDoc(t, b, "first", 0x1000)
	r := New(b, logging.Discard())

	doc, err := r.Scope(context.Background(), "")
	if err != nil || doc.ID != first {
		t.Fatalf("Scope(\"\") = %v, %v; want current doc", doc.ID, err)
	}
	doc, err = r.Scope(context.Background(), first)
	if err != nil || doc.ID != first {
		t.Fatalf("Scope(id) = %v, %v", doc.ID, err)
	}
	if _, err := r.Scope(context.Background(), "nope"); !errors.HasCode(err, errors.UnknownDocument) {
		t.Fatalf("err = %v, want UNKNOWN_DOCUMENT", err)
	}
}

func TestRebasePreservesIdentityAndSegments(t *testing.T) {
	b := backend.NewMemory()
	docID := addDoc(t, b, "app", 0x1000)
	r := New(b, logging.Discard())

	before, _ := r.Segments(context.Background(), docID)

	if err := r.Rebase(context.Background(), docID, 0x400000); err != nil {
		t.Fatalf("Rebase: %v", err)
	}

	doc, err := r.Scope(context.Background(), docID)
	if err != nil {
		t.Fatalf("document ID changed across rebase: %v", err)
	}
	if doc.BaseAddress != 0x400000 {
		t.Errorf("base = %#x, want 0x400000", doc.BaseAddress)
	}

	after, err := r.Segments(context.Background(), docID)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("segment count changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].Name != before[i].Name {
			t.Errorf("segment order changed at %d: %s -> %s", i, before[i].Name, after[i].Name)
		}
		wantStart := before[i].Start - 0x1000 + 0x400000
		if after[i].Start != wantStart {
			t.Errorf("segment %s start = %#x, want %#x", after[i].Name, after[i].Start, wantStart)
		}
	}

	// Names moved with the document.
	addrs, err := b.AddressesForName(context.Background(), docID, "main")
	if err != nil || len(addrs) != 1 || addrs[0] != 0x400000 {
		t.Errorf("main at %#v, want [0x400000]", addrs)
	}
}

func TestRebaseConflictOnWraparound(t *testing.T) {
	b := backend.NewMemory()
	docID := addDoc(t, b, "app", 0x1000)
	r := New(b, logging.Discard())

	err := r.Rebase(context.Background(), docID, 0xffffffffffffff00)
	if !errors.HasCode(err, errors.RebaseConflict) {
		t.Fatalf("err = %v, want REBASE_CONFLICT", err)
	}

	// The document is untouched after a refused rebase.
	doc, _ := r.Scope(context.Background(), docID)
	if doc.BaseAddress != 0x1000 {
		t.Errorf("base = %#x after failed rebase, want 0x1000", doc.BaseAddress)
	}
}

func TestListBackendUnavailable(t *testing.T) {
	b := backend.NewMemory()
	addDoc(t, b, "app", 0x1000)
	b.SetUnavailable(errBridge{})
	r := New(b, logging.Discard())

	_, err := r.List(context.Background())
	if !errors.HasCode(err, errors.BackendUnavailable) {
		t.Fatalf("err = %v, want BACKEND_UNAVAILABLE", err)
	}
}

type errBridge struct{}

func (errBridge) Error() string { return "bridge down" }
