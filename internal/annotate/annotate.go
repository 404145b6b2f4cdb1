// Package annotate is the write path into the backend: comments, name
// bindings, and data type markings. Writes go straight through, with a
// read-back so the caller learns the state the backend actually settled
// on rather than the state that was requested.
package annotate

import (
	"context"
	"fmt"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/logging"
)

// Gateway applies annotations through one backend.
type Gateway struct {
	backend backend.Backend
	logger  *logging.Logger

	// onRetype is called after a successful MarkDataType so the string
	// cache can drop the entry whose content can no longer be trusted.
	onRetype func(docID string, addr uint64)
}

// New creates a gateway. onRetype may be nil.
func New(b backend.Backend, logger *logging.Logger, onRetype func(docID string, addr uint64)) *Gateway {
	return &Gateway{backend: b, logger: logger, onRetype: onRetype}
}

// Comment returns the comment at addr. An absent comment is an empty
// string, not an error.
func (g *Gateway) Comment(ctx context.Context, docID string, addr uint64) (string, error) {
	text, err := g.backend.CommentAt(ctx, docID, addr)
	if err != nil {
		return "", errors.NewBackendUnavailable("CommentAt", err)
	}
	return text, nil
}

// SetComment writes a comment at addr and returns the text read back.
// An empty text clears the comment.
func (g *Gateway) SetComment(ctx context.Context, docID string, addr uint64, text string) (string, error) {
	if err := g.backend.SetComment(ctx, docID, addr, text); err != nil {
		return "", errors.NewBackendUnavailable("SetComment", err)
	}
	applied, err := g.backend.CommentAt(ctx, docID, addr)
	if err != nil {
		return "", errors.NewBackendUnavailable("CommentAt", err)
	}
	g.logger.Debug("comment written", map[string]interface{}{
		"docId":   docID,
		"address": fmt.Sprintf("0x%x", addr),
		"cleared": text == "",
	})
	return applied, nil
}

// SetName binds a name at addr and returns the name read back. Hosts
// may normalize names (strip characters, deduplicate), so the returned
// value is authoritative. An empty name removes the binding.
func (g *Gateway) SetName(ctx context.Context, docID string, addr uint64, name string) (string, error) {
	if err := g.backend.SetName(ctx, docID, addr, name); err != nil {
		return "", errors.NewBackendUnavailable("SetName", err)
	}
	applied, err := g.backend.NameAt(ctx, docID, addr)
	if err != nil {
		return "", errors.NewBackendUnavailable("NameAt", err)
	}
	g.logger.Info("name written", map[string]interface{}{
		"docId":   docID,
		"address": fmt.Sprintf("0x%x", addr),
		"name":    applied,
	})
	return applied, nil
}

// MarkDataType re-types length units at addr as kind and returns the
// applied kind and unit count. length 0 defaults to 1. The cache entry
// at addr is dropped afterwards: whatever string content was cached
// there predates the re-typing.
func (g *Gateway) MarkDataType(ctx context.Context, docID string, addr uint64, kind string, length int) (backend.TypeKind, int, error) {
	k := backend.TypeKind(kind)
	if !backend.ValidTypeKind(k) {
		return "", 0, errors.NewInvalidFormat("type", fmt.Sprintf("unknown data type %q", kind))
	}
	if length == 0 {
		length = 1
	}
	if length < 1 {
		return "", 0, errors.NewInvalidFormat("length", "must be at least 1")
	}

	if err := g.backend.MarkType(ctx, docID, addr, k, length); err != nil {
		return "", 0, errors.NewBackendUnavailable("MarkType", err)
	}
	applied, err := g.backend.TypeAt(ctx, docID, addr)
	if err != nil {
		return "", 0, errors.NewBackendUnavailable("TypeAt", err)
	}
	if g.onRetype != nil {
		g.onRetype(docID, addr)
	}
	g.logger.Debug("data type marked", map[string]interface{}{
		"docId":   docID,
		"address": fmt.Sprintf("0x%x", addr),
		"type":    string(applied),
		"length":  length,
	})
	return applied, length, nil
}
