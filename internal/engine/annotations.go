package engine

import (
	"context"

	"binkb/internal/resolve"
)

// CommentView is a comment annotation on the wire.
type CommentView struct {
	Address string `json:"address"`
	Comment string `json:"comment"`
}

// GetComment returns the comment at a resolved location. Absent
// comments come back empty rather than as an error.
func (e *Engine) GetComment(ctx context.Context, docID, location string) (*CommentView, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	text, err := e.annotator.Comment(ctx, doc.ID, addr)
	if err != nil {
		return nil, err
	}
	return &CommentView{Address: resolve.FormatAddress(addr), Comment: text}, nil
}

// SetComment writes a comment at a resolved location and returns the
// comment as the backend applied it. Empty text clears.
func (e *Engine) SetComment(ctx context.Context, docID, location, text string) (*CommentView, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	applied, err := e.annotator.SetComment(ctx, doc.ID, addr, text)
	if err != nil {
		return nil, err
	}
	return &CommentView{Address: resolve.FormatAddress(addr), Comment: applied}, nil
}

// NameView is a name binding on the wire.
type NameView struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// SetName binds a name at a resolved location and returns the name as
// the backend applied it, which may be normalized. Empty name removes
// the binding.
func (e *Engine) SetName(ctx context.Context, docID, location, name string) (*NameView, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	applied, err := e.annotator.SetName(ctx, doc.ID, addr, name)
	if err != nil {
		return nil, err
	}
	return &NameView{Address: resolve.FormatAddress(addr), Name: applied}, nil
}

// TypeView is a data type marking on the wire.
type TypeView struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Length  int    `json:"length"`
}

// MarkDataType re-types length units at a resolved location. The cached
// string at that address, if any, is dropped.
func (e *Engine) MarkDataType(ctx context.Context, docID, location, kind string, length int) (*TypeView, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	applied, units, err := e.annotator.MarkDataType(ctx, doc.ID, addr, kind, length)
	if err != nil {
		return nil, err
	}
	return &TypeView{Address: resolve.FormatAddress(addr), Type: string(applied), Length: units}, nil
}
