// Package resolve turns user-supplied location tokens into concrete
// addresses. A token is an address literal or an exact symbol name;
// literal parsing always wins, so a symbol that happens to look like a
// number must be queried through search instead.
package resolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"binkb/internal/backend"
	"binkb/internal/errors"
)

// AddressRef is a fully resolved location: the document it belongs to,
// the concrete address, and the symbol name at that address if any.
type AddressRef struct {
	DocID   string `json:"docId"`
	Address string `json:"address"` // canonical 0x hex
	Name    string `json:"name,omitempty"`
	Input   string `json:"input"` // the token as given
}

// BatchItem is one entry of a batch resolution result. Exactly one of
// Ref and Error is set; a batch never fails as a whole because one
// token is bad.
type BatchItem struct {
	Input string      `json:"input"`
	Ref   *AddressRef `json:"ref,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"errorCode,omitempty"`
}

// Resolver resolves tokens against one backend.
type Resolver struct {
	backend  backend.Backend
	maxBatch int
}

// New creates a resolver. maxBatch bounds ResolveBatch input size.
func New(b backend.Backend, maxBatch int) *Resolver {
	return &Resolver{backend: b, maxBatch: maxBatch}
}

// FormatAddress renders an address in the canonical wire form.
func FormatAddress(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

// ParseAddress parses a canonical 0x hex address string.
func ParseAddress(s string) (uint64, error) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "0x") {
		return 0, errors.NewInvalidFormat("address", fmt.Sprintf("%q is not 0x-prefixed hex", s))
	}
	addr, err := strconv.ParseUint(lower[2:], 16, 64)
	if err != nil {
		return 0, errors.NewInvalidFormat("address", fmt.Sprintf("%q is not valid hex", s))
	}
	return addr, nil
}

// isDecimal reports whether s is a non-empty run of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolve resolves one token within doc. Order is fixed: a 0x-prefixed
// token is hex (malformed hex is InvalidFormat, never a name fallback),
// an all-digit token is decimal, anything else is an exact name lookup.
func (r *Resolver) Resolve(ctx context.Context, doc backend.DocumentInfo, token string) (*AddressRef, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.NewInvalidFormat("location", "empty token")
	}

	lower := strings.ToLower(token)
	switch {
	case strings.HasPrefix(lower, "0x"):
		addr, err := ParseAddress(token)
		if err != nil {
			return nil, err
		}
		return r.refAt(ctx, doc, addr, token)

	case isDecimal(token):
		addr, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, errors.NewInvalidFormat("location", fmt.Sprintf("%q overflows a 64-bit address", token))
		}
		return r.refAt(ctx, doc, addr, token)

	default:
		return r.resolveName(ctx, doc, token)
	}
}

func (r *Resolver) refAt(ctx context.Context, doc backend.DocumentInfo, addr uint64, input string) (*AddressRef, error) {
	name, err := r.backend.NameAt(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("NameAt", err)
	}
	return &AddressRef{
		DocID:   doc.ID,
		Address: FormatAddress(addr),
		Name:    name,
		Input:   input,
	}, nil
}

func (r *Resolver) resolveName(ctx context.Context, doc backend.DocumentInfo, name string) (*AddressRef, error) {
	addrs, err := r.backend.AddressesForName(ctx, doc.ID, name)
	if err != nil {
		return nil, errors.NewBackendUnavailable("AddressesForName", err)
	}
	switch len(addrs) {
	case 0:
		return nil, errors.NewNotFound(fmt.Sprintf("no symbol named %q", name))
	case 1:
		return &AddressRef{
			DocID:   doc.ID,
			Address: FormatAddress(addrs[0]),
			Name:    name,
			Input:   name,
		}, nil
	default:
		candidates := make([]string, len(addrs))
		for i, a := range addrs {
			candidates[i] = FormatAddress(a)
		}
		return nil, errors.NewAmbiguous(name, len(addrs)).WithDetails(map[string]interface{}{
			"candidates": candidates,
		})
	}
}

// ResolveAddr resolves a token all the way to a numeric address.
func (r *Resolver) ResolveAddr(ctx context.Context, doc backend.DocumentInfo, token string) (uint64, error) {
	ref, err := r.Resolve(ctx, doc, token)
	if err != nil {
		return 0, err
	}
	return ParseAddress(ref.Address)
}

// ResolveBatch resolves up to maxBatch tokens. Each token succeeds or
// fails independently; order of results matches order of inputs. An
// oversized batch is rejected outright rather than partially served.
func (r *Resolver) ResolveBatch(ctx context.Context, doc backend.DocumentInfo, tokens []string) ([]BatchItem, error) {
	if len(tokens) == 0 {
		return nil, errors.NewInvalidFormat("locations", "empty batch")
	}
	if len(tokens) > r.maxBatch {
		return nil, errors.NewInvalidFormat("locations",
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(tokens), r.maxBatch))
	}

	out := make([]BatchItem, 0, len(tokens))
	for _, tok := range tokens {
		item := BatchItem{Input: tok}
		ref, err := r.Resolve(ctx, doc, tok)
		if err != nil {
			item.Error = err.Error()
			item.Code = string(errors.CodeOf(err))
		} else {
			item.Ref = ref
		}
		out = append(out, item)
	}
	return out, nil
}
