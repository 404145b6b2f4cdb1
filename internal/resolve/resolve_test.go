package resolve

import (
	"context"
	"strings"
	"testing"

	"binkb/internal/backend"
	"binkb/internal/errors"
)

func testDoc(t *testing.T) (*backend.Memory, backend.DocumentInfo) {
	t.Helper()
	b := backend.NewMemory()
	_, err := b.AddFixture(&backend.Fixture{
		Document: backend.FixtureDocument{Name: "crackme", Path: "/bin/crackme", Base: 0x1000, Entry: 0x1000},
		Segments: []backend.FixtureSegment{
			{Name: "__text", Start: 0x1000, End: 0x3000, Kind: "code"},
		},
		Names: []backend.FixtureName{
			{Address: 0x1000, Name: "main"},
			{Address: 0x1100, Name: "dup"},
			{Address: 0x1200, Name: "dup"},
		},
	})
	if err != nil {
		t.Fatalf("AddFixture: %v", err)
	}
	docs, err := b.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	return b, docs[0]
}

func TestResolveHexLiteral(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	ref, err := r.Resolve(context.Background(), doc, "0x1000")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Address != "0x1000" {
		t.Errorf("address = %s, want 0x1000", ref.Address)
	}
	if ref.Name != "main" {
		t.Errorf("name = %q, want main", ref.Name)
	}

	// Uppercase prefix and digits normalize to the same address.
	ref2, err := r.Resolve(context.Background(), doc, "0X1000")
	if err != nil {
		t.Fatalf("Resolve uppercase: %v", err)
	}
	if ref2.Address != ref.Address {
		t.Errorf("uppercase hex resolved to %s, want %s", ref2.Address, ref.Address)
	}
}

func TestResolveDecimalLiteral(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	ref, err := r.Resolve(context.Background(), doc, "4096")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Address != "0x1000" {
		t.Errorf("address = %s, want 0x1000", ref.Address)
	}
}

func TestResolveName(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	ref, err := r.Resolve(context.Background(), doc, "main")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Address != "0x1000" {
		t.Errorf("address = %s, want 0x1000", ref.Address)
	}
	if ref.Input != "main" {
		t.Errorf("input = %q, want main", ref.Input)
	}
}

func TestResolveIdempotent(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	ref, err := r.Resolve(context.Background(), doc, "main")
	if err != nil {
		t.Fatalf("Resolve name: %v", err)
	}
	again, err := r.Resolve(context.Background(), doc, ref.Address)
	if err != nil {
		t.Fatalf("Resolve address: %v", err)
	}
	if again.Address != ref.Address {
		t.Errorf("re-resolving %s gave %s", ref.Address, again.Address)
	}
}

func TestResolveMalformedHexDoesNotFallBackToName(t *testing.T) {
	b, doc := testDoc(t)
	// Bind a name that looks like broken hex. The literal parse must
	// still win and fail.
	if err := b.SetName(context.Background(), doc.ID, 0x1300, "0xzz"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	r := New(b, 50)

	_, err := r.Resolve(context.Background(), doc, "0xzz")
	if !errors.HasCode(err, errors.InvalidFormat) {
		t.Fatalf("err = %v, want INVALID_FORMAT", err)
	}
}

func TestResolveNotFoundAndAmbiguous(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	_, err := r.Resolve(context.Background(), doc, "no_such_symbol")
	if !errors.HasCode(err, errors.NotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}

	_, err = r.Resolve(context.Background(), doc, "dup")
	if !errors.HasCode(err, errors.Ambiguous) {
		t.Fatalf("err = %v, want AMBIGUOUS", err)
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("ambiguous error should mention the candidate count: %v", err)
	}
}

func TestResolveBatchPartialSuccess(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 50)

	items, err := r.ResolveBatch(context.Background(), doc, []string{"main", "bogus", "0x1100"})
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].Ref == nil || items[0].Ref.Address != "0x1000" {
		t.Errorf("item 0 = %+v, want ref at 0x1000", items[0])
	}
	if items[1].Ref != nil || items[1].Code != string(errors.NotFound) {
		t.Errorf("item 1 = %+v, want NOT_FOUND error", items[1])
	}
	if items[2].Ref == nil || items[2].Ref.Address != "0x1100" {
		t.Errorf("item 2 = %+v, want ref at 0x1100", items[2])
	}
}

func TestResolveBatchLimit(t *testing.T) {
	b, doc := testDoc(t)
	r := New(b, 2)

	_, err := r.ResolveBatch(context.Background(), doc, []string{"a", "b", "c"})
	if !errors.HasCode(err, errors.InvalidFormat) {
		t.Fatalf("err = %v, want INVALID_FORMAT for oversized batch", err)
	}
}

func TestResolveBackendUnavailable(t *testing.T) {
	b, doc := testDoc(t)
	b.SetUnavailable(errString("bridge down"))
	r := New(b, 50)

	_, err := r.Resolve(context.Background(), doc, "main")
	if !errors.HasCode(err, errors.BackendUnavailable) {
		t.Fatalf("err = %v, want BACKEND_UNAVAILABLE", err)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
