// Package search runs regex queries over symbol names and cached
// strings. Name search always reads the backend live so renames made a
// moment ago are visible; string search never does, it is served from
// the snapshot the caller already holds.
package search

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ianlancetaylor/demangle"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/strcache"
)

// Kind filters name search results by what lives at the address.
type Kind string

const (
	KindAll       Kind = "all"
	KindProcedure Kind = "procedure"
	KindData      Kind = "data"
)

// ParseKind validates a search type token. Empty defaults to all.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAll, KindProcedure, KindData:
		return Kind(s), nil
	case "":
		return KindAll, nil
	}
	return "", errors.NewInvalidFormat("searchType", fmt.Sprintf("%q is not procedure, data, or all", s))
}

// Compile compiles a user-supplied pattern, mapping syntax errors to
// the stable invalid-format code.
func Compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.NewInvalidFormat("pattern", "empty pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewInvalidFormat("pattern", err.Error())
	}
	return re, nil
}

// NameMatch is one symbol that matched.
type NameMatch struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Demangled string `json:"demangled,omitempty"`
	Kind      string `json:"kind"`
}

// NamesResult carries matches plus the truncation outcome. Truncated
// results are valid, just incomplete; callers surface that explicitly.
type NamesResult struct {
	Matches   []NameMatch `json:"matches"`
	Truncated bool        `json:"-"`
}

// Searcher runs name searches over one backend.
type Searcher struct {
	backend backend.Backend
}

// New creates a searcher.
func New(b backend.Backend) *Searcher {
	return &Searcher{backend: b}
}

// Names searches symbol names in the document. The pattern matches the
// raw name or its demangled form, so `std::vector` finds the mangled
// symbol too. segment narrows the scan; kind filters by what lives at
// the address. At most maxResults matches are returned, addresses
// ascending; the scan stops as soon as the limit is exceeded.
func (s *Searcher) Names(ctx context.Context, docID string, re *regexp.Regexp, kind Kind, segment string, maxResults int) (*NamesResult, error) {
	if maxResults < 1 {
		return nil, errors.NewInvalidFormat("maxResults", "must be at least 1")
	}

	bound, err := s.backend.NamedAddresses(ctx, docID, segment)
	if err != nil {
		return nil, errors.NewBackendUnavailable("NamedAddresses", err)
	}

	res := &NamesResult{Matches: []NameMatch{}}
	for _, na := range bound {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dem := demangle.Filter(na.Name)
		if dem == na.Name {
			dem = ""
		}
		if !re.MatchString(na.Name) && (dem == "" || !re.MatchString(dem)) {
			continue
		}

		k, err := s.kindAt(ctx, docID, na.Address)
		if err != nil {
			return nil, err
		}
		if kind != KindAll && k != kind {
			continue
		}

		if len(res.Matches) == maxResults {
			res.Truncated = true
			break
		}
		res.Matches = append(res.Matches, NameMatch{
			Address:   fmt.Sprintf("0x%x", na.Address),
			Name:      na.Name,
			Demangled: dem,
			Kind:      string(k),
		})
	}
	return res, nil
}

func (s *Searcher) kindAt(ctx context.Context, docID string, addr uint64) (Kind, error) {
	proc, err := s.backend.ProcedureAt(ctx, docID, addr)
	if err != nil {
		return "", errors.NewBackendUnavailable("ProcedureAt", err)
	}
	if proc != nil {
		return KindProcedure, nil
	}
	return KindData, nil
}

// StringMatch is one cached string that matched.
type StringMatch struct {
	Address  string `json:"address"`
	Segment  string `json:"segment,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// StringsResult carries matches plus the truncation outcome.
type StringsResult struct {
	Matches   []StringMatch `json:"matches"`
	Truncated bool          `json:"-"`
}

// Strings searches the cached entries, already remapped to current
// coordinates by the snapshot. segment narrows the scan. At most
// maxResults matches are returned, addresses ascending.
func Strings(entries []strcache.Entry, re *regexp.Regexp, segment string, maxResults int) (*StringsResult, error) {
	if maxResults < 1 {
		return nil, errors.NewInvalidFormat("maxResults", "must be at least 1")
	}

	res := &StringsResult{Matches: []StringMatch{}}
	for _, e := range entries {
		if segment != "" && e.Segment != segment {
			continue
		}
		if !re.MatchString(e.Content) {
			continue
		}
		if len(res.Matches) == maxResults {
			res.Truncated = true
			break
		}
		res.Matches = append(res.Matches, StringMatch{
			Address:  fmt.Sprintf("0x%x", e.Address),
			Segment:  e.Segment,
			Content:  e.Content,
			Encoding: e.Encoding,
		})
	}
	return res, nil
}

// Demangle returns the demangled form of a symbol, or the input when it
// is not a recognized mangled name.
func Demangle(name string) string {
	return demangle.Filter(name)
}
