// Package engine wires the query and annotation pipeline together: one
// backend, one document registry, per-document string caches, and the
// background job runner. Every MCP tool and CLI command is a thin
// wrapper over an Engine method.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binkb/internal/annotate"
	"binkb/internal/backend"
	"binkb/internal/callgraph"
	"binkb/internal/config"
	"binkb/internal/errors"
	"binkb/internal/jobs"
	"binkb/internal/logging"
	"binkb/internal/registry"
	"binkb/internal/resolve"
	"binkb/internal/search"
	"binkb/internal/strcache"
)

// Engine is the orchestration facade over the host backend.
type Engine struct {
	cfg    *config.Config
	logger *logging.Logger

	backend   backend.Backend
	registry  *registry.Registry
	resolver  *resolve.Resolver
	searcher  *search.Searcher
	walker    *callgraph.Walker
	annotator *annotate.Gateway
	runner    *jobs.Runner

	mu     sync.Mutex
	stores map[string]*strcache.Store // keyed by doc ID
}

// New creates an engine over the given backend.
func New(cfg *config.Config, b backend.Backend, logger *logging.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		backend:  b,
		registry: registry.New(b, logger),
		resolver: resolve.New(b, cfg.Limits.MaxBatchResolve),
		searcher: search.New(b),
		walker:   callgraph.New(b),
		stores:   make(map[string]*strcache.Store),
	}
	e.annotator = annotate.New(b, logger, e.onRetype)

	store := jobs.NewStore()
	e.runner = jobs.NewRunner(store, logger, jobs.DefaultRunnerConfig())
	e.runner.RegisterHandler(jobs.JobTypeCacheBuild, e.cacheBuildHandler)
	return e
}

// Start launches the background job worker.
func (e *Engine) Start() {
	e.runner.Start()
}

// Stop shuts the engine down, cancelling in-flight jobs.
func (e *Engine) Stop(timeout time.Duration) error {
	return e.runner.Stop(timeout)
}

// Registry exposes the document registry for CLI commands.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// storeFor returns the string cache store for one document, creating an
// empty one on first use.
func (e *Engine) storeFor(docID string) *strcache.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.stores[docID]
	if !ok {
		st = strcache.NewStore(e.logger)
		e.stores[docID] = st
	}
	return st
}

// onRetype drops the cached string at addr after a data type change.
func (e *Engine) onRetype(docID string, addr uint64) {
	doc, err := e.registry.Scope(context.Background(), docID)
	if err != nil {
		return
	}
	e.storeFor(docID).Invalidate(addr, doc.BaseAddress)
}

// DocumentSummary is the wire view of one loaded document.
type DocumentSummary struct {
	DocID      string `json:"docId"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	SavePath   string `json:"savePath,omitempty"`
	Base       string `json:"base"`
	EntryPoint string `json:"entryPoint"`
	Current    bool   `json:"current"`
}

func (e *Engine) summarize(doc backend.DocumentInfo, current string) DocumentSummary {
	return DocumentSummary{
		DocID:      doc.ID,
		Name:       doc.Name,
		Path:       doc.Path,
		SavePath:   doc.SavePath,
		Base:       resolve.FormatAddress(doc.BaseAddress),
		EntryPoint: resolve.FormatAddress(doc.EntryPoint),
		Current:    doc.ID == current,
	}
}

// ListDocuments returns every loaded document, current one flagged.
func (e *Engine) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	docs, err := e.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	currentID := ""
	if cur, err := e.registry.Current(ctx); err == nil {
		currentID = cur.ID
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, e.summarize(d, currentID))
	}
	return out, nil
}

// CurrentDocument returns the current document.
func (e *Engine) CurrentDocument(ctx context.Context) (*DocumentSummary, error) {
	doc, err := e.registry.Current(ctx)
	if err != nil {
		return nil, err
	}
	s := e.summarize(doc, doc.ID)
	return &s, nil
}

// SetCurrentDocument switches the current document and returns it.
func (e *Engine) SetCurrentDocument(ctx context.Context, docID string) (*DocumentSummary, error) {
	if err := e.registry.SetCurrent(ctx, docID); err != nil {
		return nil, err
	}
	return e.CurrentDocument(ctx)
}

// RebaseDocument moves the document to a new base address. The cache
// survives: lookups remap through the base delta, so no rebuild is
// forced by a rebase alone.
func (e *Engine) RebaseDocument(ctx context.Context, docID, newBase string) (*DocumentSummary, error) {
	base, err := resolve.ParseAddress(newBase)
	if err != nil {
		return nil, err
	}
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := e.registry.Rebase(ctx, doc.ID, base); err != nil {
		return nil, err
	}
	updated, err := e.registry.Scope(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	currentID := ""
	if cur, err := e.registry.Current(ctx); err == nil {
		currentID = cur.ID
	}
	s := e.summarize(updated, currentID)
	return &s, nil
}

// SegmentView is the wire view of one segment.
type SegmentView struct {
	Name           string `json:"name"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Kind           string `json:"kind"`
	ProcedureCount int    `json:"procedureCount"`
	StringCount    int    `json:"stringCount"`
	NameCount      int    `json:"nameCount"`
}

// ListSegments returns the document's segments in load order.
func (e *Engine) ListSegments(ctx context.Context, docID string) ([]SegmentView, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	segs, err := e.registry.Segments(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	out := make([]SegmentView, 0, len(segs))
	for _, s := range segs {
		out = append(out, SegmentView{
			Name:           s.Name,
			Start:          resolve.FormatAddress(s.Start),
			End:            resolve.FormatAddress(s.End),
			Kind:           s.Kind,
			ProcedureCount: s.ProcedureCount,
			StringCount:    s.StringCount,
			NameCount:      s.NameCount,
		})
	}
	return out, nil
}

// ResolveLocation resolves one address-or-name token.
func (e *Engine) ResolveLocation(ctx context.Context, docID, location string) (*resolve.AddressRef, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, doc, location)
}

// ResolveBatch resolves up to the configured limit of tokens, each
// succeeding or failing independently.
func (e *Engine) ResolveBatch(ctx context.Context, docID string, locations []string) ([]resolve.BatchItem, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	return e.resolver.ResolveBatch(ctx, doc, locations)
}

// resolveAddr resolves a location token to a document and address.
func (e *Engine) resolveAddr(ctx context.Context, docID, location string) (backend.DocumentInfo, uint64, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return backend.DocumentInfo{}, 0, err
	}
	addr, err := e.resolver.ResolveAddr(ctx, doc, location)
	if err != nil {
		return backend.DocumentInfo{}, 0, err
	}
	return doc, addr, nil
}

// ProcedureView is the wire view of a procedure.
type ProcedureView struct {
	EntryPoint      string `json:"entryPoint"`
	Signature       string `json:"signature,omitempty"`
	BasicBlockCount int    `json:"basicBlockCount"`
}

// AddressInfo aggregates everything known about one address.
type AddressInfo struct {
	Ref            *resolve.AddressRef `json:"ref"`
	Demangled      string              `json:"demangled,omitempty"`
	Segment        string              `json:"segment,omitempty"`
	Type           string              `json:"type"`
	Comment        string              `json:"comment,omitempty"`
	Procedure      *ProcedureView      `json:"procedure,omitempty"`
	ReferencesTo   []string            `json:"referencesTo"`
	ReferencesFrom []string            `json:"referencesFrom"`
}

// GetAddressInfo resolves a location and gathers its metadata in one
// round trip.
func (e *Engine) GetAddressInfo(ctx context.Context, docID, location string) (*AddressInfo, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	ref, err := e.resolver.Resolve(ctx, doc, location)
	if err != nil {
		return nil, err
	}
	addr, err := resolve.ParseAddress(ref.Address)
	if err != nil {
		return nil, err
	}

	info := &AddressInfo{Ref: ref, ReferencesTo: []string{}, ReferencesFrom: []string{}}
	if ref.Name != "" {
		if dem := search.Demangle(ref.Name); dem != ref.Name {
			info.Demangled = dem
		}
	}

	segs, err := e.registry.Segments(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range segs {
		if s.Contains(addr) {
			info.Segment = s.Name
			break
		}
	}

	kind, err := e.backend.TypeAt(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("TypeAt", err)
	}
	info.Type = string(kind)

	comment, err := e.backend.CommentAt(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("CommentAt", err)
	}
	info.Comment = comment

	proc, err := e.backend.ProcedureAt(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("ProcedureAt", err)
	}
	if proc != nil {
		info.Procedure = &ProcedureView{
			EntryPoint:      resolve.FormatAddress(proc.EntryPoint),
			Signature:       proc.Signature,
			BasicBlockCount: proc.BasicBlockCount,
		}
	}

	refsTo, err := e.backend.ReferencesTo(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("ReferencesTo", err)
	}
	for _, r := range refsTo {
		info.ReferencesTo = append(info.ReferencesTo, resolve.FormatAddress(r))
	}
	refsFrom, err := e.backend.ReferencesFrom(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("ReferencesFrom", err)
	}
	for _, r := range refsFrom {
		info.ReferencesFrom = append(info.ReferencesFrom, resolve.FormatAddress(r))
	}
	return info, nil
}

// AddressInfoItem is one entry of a batch info result. Exactly one of
// Info and Error is set; a batch never fails as a whole because one
// location is bad.
type AddressInfoItem struct {
	Input string       `json:"input"`
	Info  *AddressInfo `json:"info,omitempty"`
	Error string       `json:"error,omitempty"`
	Code  string       `json:"errorCode,omitempty"`
}

// GetAddressInfoBatch gathers address info for up to the batch limit of
// locations. Each entry succeeds or fails independently; order matches
// the input order, and an oversized batch is rejected outright rather
// than partially served.
func (e *Engine) GetAddressInfoBatch(ctx context.Context, docID string, locations []string) ([]AddressInfoItem, error) {
	doc, err := e.registry.Scope(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, errors.NewInvalidFormat("locations", "empty batch")
	}
	if len(locations) > e.cfg.Limits.MaxBatchResolve {
		return nil, errors.NewInvalidFormat("locations",
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(locations), e.cfg.Limits.MaxBatchResolve))
	}

	out := make([]AddressInfoItem, 0, len(locations))
	for _, loc := range locations {
		item := AddressInfoItem{Input: loc}
		info, err := e.GetAddressInfo(ctx, doc.ID, loc)
		if err != nil {
			item.Error = err.Error()
			item.Code = string(errors.CodeOf(err))
		} else {
			item.Info = info
		}
		out = append(out, item)
	}
	return out, nil
}

// CallGraph walks call relationships from a resolved root. maxDepth 0
// returns the root alone; a negative value selects the configured
// default depth.
func (e *Engine) CallGraph(ctx context.Context, docID, location, direction string, maxDepth int) (*callgraph.Result, error) {
	dir, err := callgraph.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = e.cfg.Limits.MaxCallGraphDepth
	}
	if maxDepth > e.cfg.Limits.MaxCallGraphDepth {
		return nil, errors.NewInvalidFormat("maxDepth",
			fmt.Sprintf("%d exceeds the limit of %d", maxDepth, e.cfg.Limits.MaxCallGraphDepth))
	}

	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	return e.walker.Walk(ctx, doc.ID, addr, dir, maxDepth)
}

// ListingResult is decompiled or disassembled procedure text.
type ListingResult struct {
	Procedure ProcedureView `json:"procedure"`
	Text      string        `json:"text"`
}

// Decompile renders pseudo-C for the procedure containing location.
func (e *Engine) Decompile(ctx context.Context, docID, location string) (*ListingResult, error) {
	return e.listing(ctx, docID, location, e.backend.Decompile, "Decompile")
}

// Disassemble renders assembly for the procedure containing location.
func (e *Engine) Disassemble(ctx context.Context, docID, location string) (*ListingResult, error) {
	return e.listing(ctx, docID, location, e.backend.Disassemble, "Disassemble")
}

func (e *Engine) listing(ctx context.Context, docID, location string, render func(context.Context, string, uint64) (string, error), op string) (*ListingResult, error) {
	doc, addr, err := e.resolveAddr(ctx, docID, location)
	if err != nil {
		return nil, err
	}
	proc, err := e.backend.ProcedureAt(ctx, doc.ID, addr)
	if err != nil {
		return nil, errors.NewBackendUnavailable("ProcedureAt", err)
	}
	if proc == nil {
		return nil, errors.NewNotFound(fmt.Sprintf("no procedure at %s", resolve.FormatAddress(addr)))
	}
	text, err := render(ctx, doc.ID, proc.EntryPoint)
	if err != nil {
		return nil, errors.NewBackendUnavailable(op, err)
	}
	return &ListingResult{
		Procedure: ProcedureView{
			EntryPoint:      resolve.FormatAddress(proc.EntryPoint),
			Signature:       proc.Signature,
			BasicBlockCount: proc.BasicBlockCount,
		},
		Text: text,
	}, nil
}
