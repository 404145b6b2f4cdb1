// Package registry tracks the documents loaded in the host and owns the
// process-wide "current document" pointer. It owns no caches itself; the
// doc ID it hands out is the scope key for all cached data.
package registry

import (
	"context"
	"sync"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/logging"
)

// Registry resolves document scope for every operation. The current pointer
// is held by ID, not by live reference, so it survives document-internal
// mutation (rebase, rename).
type Registry struct {
	backend backend.Backend
	logger  *logging.Logger

	mu        sync.RWMutex
	currentID string
}

// New creates a registry over the given backend.
func New(b backend.Backend, logger *logging.Logger) *Registry {
	return &Registry{backend: b, logger: logger}
}

// List returns summaries of all loaded documents. Never fails with a
// domain error; an empty host session yields an empty slice.
func (r *Registry) List(ctx context.Context) ([]backend.DocumentInfo, error) {
	docs, err := r.backend.Documents(ctx)
	if err != nil {
		return nil, errors.NewBackendUnavailable("Documents", err)
	}
	return docs, nil
}

// Current returns the current document, or NoDocumentLoaded. When no
// current pointer has been set, the first loaded document is adopted,
// matching the host's notion of the frontmost document.
func (r *Registry) Current(ctx context.Context) (backend.DocumentInfo, error) {
	docs, err := r.List(ctx)
	if err != nil {
		return backend.DocumentInfo{}, err
	}
	if len(docs) == 0 {
		return backend.DocumentInfo{}, errors.NewNoDocumentLoaded()
	}

	r.mu.RLock()
	id := r.currentID
	r.mu.RUnlock()

	if id != "" {
		for _, d := range docs {
			if d.ID == id {
				return d, nil
			}
		}
		// The host closed the document behind our back; fall through to
		// the first loaded one.
		r.logger.Warn("current document no longer loaded", map[string]interface{}{
			"docId": id,
		})
	}
	return docs[0], nil
}

// SetCurrent switches the current document. The only mutator of the
// pointer; linearizable with respect to concurrent readers.
func (r *Registry) SetCurrent(ctx context.Context, docID string) error {
	docs, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == docID {
			r.mu.Lock()
			r.currentID = docID
			r.mu.Unlock()
			r.logger.Info("current document changed", map[string]interface{}{
				"docId": docID,
				"name":  d.Name,
			})
			return nil
		}
	}
	return errors.NewUnknownDocument(docID)
}

// Scope resolves an optional doc ID override into a concrete document.
// An empty override means the current document.
func (r *Registry) Scope(ctx context.Context, docID string) (backend.DocumentInfo, error) {
	if docID == "" {
		return r.Current(ctx)
	}
	docs, err := r.List(ctx)
	if err != nil {
		return backend.DocumentInfo{}, err
	}
	for _, d := range docs {
		if d.ID == docID {
			return d, nil
		}
	}
	return backend.DocumentInfo{}, errors.NewUnknownDocument(docID)
}

// Segments returns the document's segments in load order.
func (r *Registry) Segments(ctx context.Context, docID string) ([]backend.Segment, error) {
	segs, err := r.backend.Segments(ctx, docID)
	if err != nil {
		return nil, errors.NewBackendUnavailable("Segments", err)
	}
	return segs, nil
}

// Rebase shifts a document's base address in place. Preserves the doc ID
// and the count/order of segments. Fails with RebaseConflict when the
// shifted layout would wrap the address space.
func (r *Registry) Rebase(ctx context.Context, docID string, newBase uint64) error {
	doc, err := r.Scope(ctx, docID)
	if err != nil {
		return err
	}

	segs, err := r.Segments(ctx, doc.ID)
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if newBase > doc.BaseAddress {
			delta := newBase - doc.BaseAddress
			if seg.End+delta < seg.End {
				return errors.NewRebaseConflict("rebase would wrap segment " + seg.Name)
			}
		} else {
			delta := doc.BaseAddress - newBase
			if seg.Start < delta {
				return errors.NewRebaseConflict("rebase would wrap segment " + seg.Name)
			}
		}
	}

	if err := r.backend.Rebase(ctx, doc.ID, newBase); err != nil {
		return errors.NewBackendUnavailable("Rebase", err)
	}
	r.logger.Info("document rebased", map[string]interface{}{
		"docId":   doc.ID,
		"newBase": newBase,
	})
	return nil
}
