package engine

import (
	"context"
	"os"

	"binkb/internal/errors"
	"binkb/internal/strcache"
	"binkb/internal/version"
)

// DocumentStatus pairs a document with its cache state.
type DocumentStatus struct {
	Document DocumentSummary `json:"document"`
	Cache    strcache.Stats  `json:"cache"`
}

// Status is the operational snapshot returned by getStatus.
type Status struct {
	Version   string                 `json:"version"`
	Documents []DocumentStatus       `json:"documents"`
	Jobs      map[string]interface{} `json:"jobs"`
}

// Status reports versions, loaded documents, per-document cache state,
// and job runner occupancy.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	out := &Status{
		Version:   version.Version,
		Documents: []DocumentStatus{},
		Jobs:      e.runner.Stats(),
	}

	docs, err := e.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	currentID := ""
	if cur, err := e.registry.Current(ctx); err == nil {
		currentID = cur.ID
	}

	for _, d := range docs {
		token := ""
		if t, err := e.backend.StateToken(ctx, d.ID); err == nil {
			token = t
		}
		out.Documents = append(out.Documents, DocumentStatus{
			Document: e.summarize(d, currentID),
			Cache:    e.storeFor(d.ID).StatsFor(token),
		})
	}
	return out, nil
}

// Check is one doctor diagnostic.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

// Diagnosis is the doctor report.
type Diagnosis struct {
	Healthy bool    `json:"healthy"`
	Checks  []Check `json:"checks"`
}

// Doctor runs connectivity and configuration diagnostics. It never
// mutates anything; every check is safe to run repeatedly.
func (e *Engine) Doctor(ctx context.Context) *Diagnosis {
	diag := &Diagnosis{Healthy: true}
	add := func(c Check) {
		if c.Status == "fail" {
			diag.Healthy = false
		}
		diag.Checks = append(diag.Checks, c)
	}

	if err := e.cfg.Validate(); err != nil {
		add(Check{Name: "config", Status: "fail", Detail: err.Error()})
	} else {
		add(Check{Name: "config", Status: "ok"})
	}

	docs, err := e.registry.List(ctx)
	switch {
	case err != nil:
		add(Check{Name: "backend", Status: "fail", Detail: err.Error()})
	case len(docs) == 0:
		add(Check{Name: "backend", Status: "warn", Detail: "reachable, but no document is loaded"})
	default:
		add(Check{Name: "backend", Status: "ok"})
	}

	if e.cfg.Cache.Dir != "" {
		if fi, err := os.Stat(e.cfg.Cache.Dir); err != nil || !fi.IsDir() {
			add(Check{Name: "cacheDir", Status: "fail", Detail: "configured cache directory does not exist"})
		} else {
			add(Check{Name: "cacheDir", Status: "ok"})
		}
	}

	for _, d := range docs {
		name := "cache:" + d.Name
		if _, err := e.snapshotFor(ctx, d); err != nil {
			if errors.HasCode(err, errors.CacheVersionMismatch) {
				add(Check{Name: name, Status: "warn", Detail: "artifact format is newer than this build, rebuild required"})
			} else {
				add(Check{Name: name, Status: "warn", Detail: "no string cache built"})
			}
			continue
		}
		token := ""
		if t, err := e.backend.StateToken(ctx, d.ID); err == nil {
			token = t
		}
		if stats := e.storeFor(d.ID).StatsFor(token); stats.Stale {
			add(Check{Name: name, Status: "warn", Detail: "cache is stale, analysis changed since build"})
		} else {
			add(Check{Name: name, Status: "ok"})
		}
	}
	return diag
}
