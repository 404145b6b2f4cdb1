package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"binkb/internal/backend"
	"binkb/internal/errors"
	"binkb/internal/jobs"
	"binkb/internal/resolve"
	"binkb/internal/search"
	"binkb/internal/strcache"
)

// CacheMeta tells the caller which cache served a string query and how
// fresh it was. Stale results are served, not refused; the flag lets
// the client decide whether to rebuild.
type CacheMeta struct {
	Hit     bool
	BuiltAt time.Time
	Stale   bool
}

// snapshotFor returns the live snapshot for doc, lazily loading the
// on-disk artifact on first use after startup.
func (e *Engine) snapshotFor(ctx context.Context, doc backend.DocumentInfo) (*strcache.Snapshot, error) {
	st := e.storeFor(doc.ID)
	snap, err := st.Snapshot(doc.ID)
	if err == nil {
		return snap, nil
	}

	path, perr := strcache.ArtifactPath(doc, e.cfg.Cache.Dir)
	if perr != nil {
		return nil, errors.NewNotCached(doc.ID)
	}
	return st.LoadArtifact(ctx, doc, path)
}

// cacheMeta computes freshness of a snapshot against the backend's
// current state token. A token fetch failure degrades to stale=true
// rather than failing a query the cache can already answer.
func (e *Engine) cacheMeta(ctx context.Context, doc backend.DocumentInfo, snap *strcache.Snapshot) CacheMeta {
	meta := CacheMeta{Hit: true, BuiltAt: snap.BuiltAt(), Stale: true}
	if token, err := e.backend.StateToken(ctx, doc.ID); err == nil {
		meta.Stale = token != snap.StateToken()
	}
	return meta
}

// maxResultsOrDefault applies the configured default limit.
func (e *Engine) maxResultsOrDefault(maxResults int) int {
	if maxResults <= 0 {
		return e.cfg.Limits.DefaultMaxResults
	}
	return maxResults
}

// NamesSearch is the result of a symbol name search.
type NamesSearch struct {
	Matches   []search.NameMatch `json:"matches"`
	Truncated bool               `json:"-"`
}

// SearchNames searches symbol names live against the backend, so a
// rename made through setName is visible in the very next search.
func (e *Engine) SearchNames(ctx context.Context, docID, pattern, searchType, segment string, maxResults int) (*NamesSearch, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	re, err := search.Compile(pattern)
	if err != nil {
		return nil, err
	}
	kind, err := search.ParseKind(searchType)
	if err != nil {
		return nil, err
	}

	res, err := e.searcher.Names(ctx, doc.ID, re, kind, segment, e.maxResultsOrDefault(maxResults))
	if err != nil {
		return nil, err
	}
	return &NamesSearch{Matches: res.Matches, Truncated: res.Truncated}, nil
}

// StringsSearch is the result of a cached string search.
type StringsSearch struct {
	Matches   []search.StringMatch `json:"matches"`
	Truncated bool                 `json:"-"`
	Cache     CacheMeta            `json:"-"`
}

// SearchStrings searches the document's cached strings. Fails with
// NotCached when no cache has been built; it never falls back to the
// backend's minutes-scale enumeration.
func (e *Engine) SearchStrings(ctx context.Context, docID, pattern, segment string, maxResults int) (*StringsSearch, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	re, err := search.Compile(pattern)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshotFor(ctx, doc)
	if err != nil {
		return nil, err
	}

	res, err := search.Strings(snap.All(doc.BaseAddress), re, segment, e.maxResultsOrDefault(maxResults))
	if err != nil {
		return nil, err
	}
	return &StringsSearch{
		Matches:   res.Matches,
		Truncated: res.Truncated,
		Cache:     e.cacheMeta(ctx, doc, snap),
	}, nil
}

// StringView is one cached string on the wire.
type StringView struct {
	Address  string `json:"address"`
	Segment  string `json:"segment,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// StringAt looks up the cached string at a resolved location.
type StringAt struct {
	String StringView `json:"string"`
	Cache  CacheMeta  `json:"-"`
}

// GetStringAt returns the cached string at location. NotFound when the
// address holds no known string; NotCached when no cache exists.
func (e *Engine) GetStringAt(ctx context.Context, docID, location string) (*StringAt, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshotFor(ctx, doc)
	if err != nil {
		return nil, err
	}

	entry, ok := snap.Lookup(addr, doc.BaseAddress)
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("no cached string at %s", resolve.FormatAddress(addr)))
	}
	return &StringAt{
		String: StringView{
			Address:  resolve.FormatAddress(entry.Address),
			Segment:  entry.Segment,
			Content:  entry.Content,
			Encoding: entry.Encoding,
		},
		Cache: e.cacheMeta(ctx, doc, snap),
	}, nil
}

// BuildResult reports a completed synchronous cache build.
type BuildResult struct {
	DocID   string `json:"docId"`
	Strings int    `json:"strings"`
	Path    string `json:"path"`
	BuiltAt string `json:"builtAt"`
}

// JobRef points the caller at a background job.
type JobRef struct {
	JobID string `json:"jobId"`
	Type  string `json:"type"`
}

// buildScope is the JSON scope recorded on cache build jobs.
type buildScope struct {
	DocID string `json:"docId"`
}

// BuildStringCache enumerates the document's strings and persists them.
// Synchronous by default; background=true queues it as a job since a
// large binary takes minutes.
func (e *Engine) BuildStringCache(ctx context.Context, docID string, background bool) (*BuildResult, *JobRef, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, nil, err
	}

	if background {
		job, err := jobs.NewJob(jobs.JobTypeCacheBuild, buildScope{DocID: doc.ID})
		if err != nil {
			return nil, nil, err
		}
		if err := e.runner.Submit(job); err != nil {
			return nil, nil, err
		}
		return nil, &JobRef{JobID: job.ID, Type: string(job.Type)}, nil
	}

	res, err := e.buildCache(ctx, doc, nil)
	if err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

func (e *Engine) buildCache(ctx context.Context, doc backend.DocumentInfo, progress func(int)) (*BuildResult, error) {
	path, err := strcache.ArtifactPath(doc, e.cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	snap, err := e.storeFor(doc.ID).Build(ctx, e.backend, doc, path, progress)
	if err != nil {
		return nil, err
	}
	return &BuildResult{
		DocID:   doc.ID,
		Strings: snap.Len(),
		Path:    snap.Path(),
		BuiltAt: snap.BuiltAt().Format(time.RFC3339),
	}, nil
}

// cacheBuildHandler runs queued cache builds on the job worker.
func (e *Engine) cacheBuildHandler(ctx context.Context, job *jobs.Job, progress func(int)) (interface{}, error) {
	var scope buildScope
	if err := unmarshalScope(job, &scope); err != nil {
		return nil, err
	}
	doc, err := e.registry.Scope(ctx, scope.DocID)
	if err != nil {
		return nil, err
	}
	return e.buildCache(ctx, doc, progress)
}

// CacheStats reports the state of one document's string cache.
func (e *Engine) CacheStats(ctx context.Context, docID string) (*strcache.Stats, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	// Pull the artifact in if this is the first touch since startup.
	if _, err := e.snapshotFor(ctx, doc); err != nil && !errors.HasCode(err, errors.NotCached) {
		return nil, err
	}

	token := ""
	if t, err := e.backend.StateToken(ctx, doc.ID); err == nil {
		token = t
	}
	stats := e.storeFor(doc.ID).StatsFor(token)
	return &stats, nil
}

// ExportResult reports a completed string export.
type ExportResult struct {
	DocID   string `json:"docId"`
	Strings int    `json:"strings"`
	Path    string `json:"path"`
}

// ExportStrings writes the cached strings as zstd-compressed JSON lines
// at path, for offline tooling.
func (e *Engine) ExportStrings(ctx context.Context, docID, path string) (*ExportResult, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshotFor(ctx, doc)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	count, err := snap.Export(f, doc.BaseAddress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return &ExportResult{DocID: doc.ID, Strings: count, Path: path}, nil
}

// DemangledName is the result of demangling one symbol.
type DemangledName struct {
	Name      string `json:"name"`
	Demangled string `json:"demangled"`
	Mangled   bool   `json:"mangled"`
}

// DemangleName demangles a symbol name. Unmangled names pass through.
func (e *Engine) DemangleName(name string) (*DemangledName, error) {
	if name == "" {
		return nil, errors.NewInvalidFormat("name", "empty name")
	}
	dem := search.Demangle(name)
	return &DemangledName{Name: name, Demangled: dem, Mangled: dem != name}, nil
}
