package strcache

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// exportRecord is one line of the export stream.
type exportRecord struct {
	Address  string `json:"address"`
	Segment  string `json:"segment,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Export writes the snapshot as zstd-compressed JSON lines, one string
// per line, addresses rendered in the document's current coordinates.
// The format is meant for offline tooling (grep, jq) on large caches.
func (s *Snapshot) Export(w io.Writer, currentBase uint64) (int, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("failed to start compressed export: %w", err)
	}

	enc := json.NewEncoder(zw)
	count := 0
	for _, e := range s.All(currentBase) {
		rec := exportRecord{
			Address:  fmt.Sprintf("0x%x", e.Address),
			Segment:  e.Segment,
			Content:  e.Content,
			Encoding: e.Encoding,
		}
		if err := enc.Encode(&rec); err != nil {
			zw.Close()
			return count, fmt.Errorf("failed to export string at %s: %w", rec.Address, err)
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("failed to finish compressed export: %w", err)
	}
	return count, nil
}
