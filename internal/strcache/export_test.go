package strcache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zstd"

	"binkb/internal/logging"
)

func TestExportRoundTrip(t *testing.T) {
	b, doc := testBackend(t)
	st := NewStore(logging.Discard())
	snap, err := st.Build(context.Background(), b, doc, artifact(t), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var buf bytes.Buffer
	count, err := snap.Export(&buf, doc.BaseAddress)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if count != 2 {
		t.Fatalf("exported %d strings, want 2", count)
	}

	zr, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer zr.Close()

	var lines []exportRecord
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var rec exportRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, rec)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 2 {
		t.Fatalf("read %d lines, want 2", len(lines))
	}
	if lines[0].Address != "0x1000" || lines[0].Content != "hello" {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Address != "0x2000" || lines[1].Content != "world" {
		t.Errorf("line 1 = %+v", lines[1])
	}
}
