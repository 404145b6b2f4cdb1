package mcp

import (
	"context"
	"time"

	"binkb/internal/envelope"
	"binkb/internal/errors"
)

func (s *Server) handleListDocuments(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	docs, err := s.engine.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(map[string]interface{}{
		"documents": docs,
	}).Build(), nil
}

func (s *Server) handleGetCurrentDocument(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	doc, err := s.engine.CurrentDocument(ctx)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(doc).Build(), nil
}

func (s *Server) handleSetCurrentDocument(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	docID, err := requiredString(params, "docId")
	if err != nil {
		return nil, err
	}
	doc, err := s.engine.SetCurrentDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(doc).Build(), nil
}

func (s *Server) handleRebaseDocument(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	newBase, err := requiredString(params, "newBase")
	if err != nil {
		return nil, err
	}
	doc, err := s.engine.RebaseDocument(ctx, stringParam(params, "docId"), newBase)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(doc).
		Warning("string cache lookups remap through the new base; rebuild to refresh the artifact").
		Build(), nil
}

func (s *Server) handleListSegments(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	segs, err := s.engine.ListSegments(ctx, stringParam(params, "docId"))
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(map[string]interface{}{
		"segments": segs,
	}).Build(), nil
}

func (s *Server) handleGetAddressInfo(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	locations, err := stringSliceParam(params, "locations")
	if err != nil {
		return nil, err
	}
	items, err := s.engine.GetAddressInfoBatch(ctx, stringParam(params, "docId"), locations)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(map[string]interface{}{
		"results": items,
	}).Build(), nil
}

func (s *Server) handleResolveLocations(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	locations, err := stringSliceParam(params, "locations")
	if err != nil {
		return nil, err
	}
	items, err := s.engine.ResolveBatch(ctx, stringParam(params, "docId"), locations)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(map[string]interface{}{
		"results": items,
	}).Build(), nil
}

func (s *Server) handleSearchNames(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	pattern, err := requiredString(params, "pattern")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.SearchNames(ctx,
		stringParam(params, "docId"),
		pattern,
		stringParam(params, "searchType"),
		stringParam(params, "segment"),
		intParam(params, "maxResults"),
	)
	if err != nil {
		return nil, err
	}
	return envelope.New().
		Data(map[string]interface{}{"matches": res.Matches}).
		WithTruncation(res.Truncated, len(res.Matches), "maxResults").
		Build(), nil
}

func (s *Server) handleSearchStrings(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	pattern, err := requiredString(params, "pattern")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.SearchStrings(ctx,
		stringParam(params, "docId"),
		pattern,
		stringParam(params, "segment"),
		intParam(params, "maxResults"),
	)
	if err != nil {
		return nil, err
	}
	return envelope.New().
		Data(map[string]interface{}{"matches": res.Matches}).
		WithTruncation(res.Truncated, len(res.Matches), "maxResults").
		WithCache(res.Cache.Hit, res.Cache.BuiltAt.Format(time.RFC3339), res.Cache.Stale).
		Build(), nil
}

func (s *Server) handleGetStringAt(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.GetStringAt(ctx, stringParam(params, "docId"), location)
	if err != nil {
		return nil, err
	}
	return envelope.New().
		Data(res.String).
		WithCache(res.Cache.Hit, res.Cache.BuiltAt.Format(time.RFC3339), res.Cache.Stale).
		Build(), nil
}

func (s *Server) handleBuildStringCache(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	built, job, err := s.engine.BuildStringCache(ctx,
		stringParam(params, "docId"),
		boolParam(params, "background"),
	)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return envelope.New().Data(job).Build(), nil
	}
	return envelope.New().Data(built).Build(), nil
}

func (s *Server) handleCacheStats(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	stats, err := s.engine.CacheStats(ctx, stringParam(params, "docId"))
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(stats).Build(), nil
}

func (s *Server) handleGetCallGraph(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	// Absent maxDepth means the configured default; an explicit 0 is a
	// valid root-only request, so absence must be distinguished from 0.
	maxDepth := -1
	if _, ok := params["maxDepth"]; ok {
		maxDepth = intParam(params, "maxDepth")
		if maxDepth < 0 {
			return nil, errors.NewInvalidFormat("maxDepth", "must not be negative")
		}
	}
	res, err := s.engine.CallGraph(ctx,
		stringParam(params, "docId"),
		location,
		stringParam(params, "direction"),
		maxDepth,
	)
	if err != nil {
		return nil, err
	}
	return envelope.New().
		Data(res).
		WithTruncation(res.Truncated, res.Nodes, "maxDepth").
		Build(), nil
}

func (s *Server) handleDecompileProcedure(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Decompile(ctx, stringParam(params, "docId"), location)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleDisassembleProcedure(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Disassemble(ctx, stringParam(params, "docId"), location)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleGetDemangledName(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	name, err := requiredString(params, "name")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.DemangleName(name)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleGetComment(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.GetComment(ctx, stringParam(params, "docId"), location)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleSetComment(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	comment, err := requiredString(params, "comment")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.SetComment(ctx, stringParam(params, "docId"), location, comment)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleSetName(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	name := stringParam(params, "name")
	res, err := s.engine.SetName(ctx, stringParam(params, "docId"), location, name)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleMarkDataType(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	location, err := requiredString(params, "location")
	if err != nil {
		return nil, err
	}
	kind, err := requiredString(params, "type")
	if err != nil {
		return nil, err
	}
	res, err := s.engine.MarkDataType(ctx,
		stringParam(params, "docId"),
		location,
		kind,
		intParam(params, "length"),
	)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleGetJobStatus(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	jobID, err := requiredString(params, "jobId")
	if err != nil {
		return nil, err
	}
	job, err := s.engine.JobStatus(jobID)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(job).Build(), nil
}

func (s *Server) handleListJobs(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	res, err := s.engine.ListJobs(stringParam(params, "status"), intParam(params, "limit"))
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(res).Build(), nil
}

func (s *Server) handleCancelJob(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	jobID, err := requiredString(params, "jobId")
	if err != nil {
		return nil, err
	}
	job, err := s.engine.CancelJob(jobID)
	if err != nil {
		return nil, err
	}
	return envelope.New().Data(job).Build(), nil
}

func (s *Server) handleGetStatus(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, err
	}
	return envelope.Operational(status), nil
}

func (s *Server) handleDoctor(ctx context.Context, params map[string]interface{}) (*envelope.Response, error) {
	return envelope.Operational(s.engine.Doctor(ctx)), nil
}
