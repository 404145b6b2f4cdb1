// Package envelope provides a standardized response wrapper for all MCP tool
// responses. Every tool response is wrapped in a consistent envelope that
// includes metadata about truncation, cache status, warnings, and errors.
package envelope

// Truncation describes result trimming. Every search and traversal tool sets
// it when maxResults/maxDepth cut the result short so callers know more
// results may exist.
type Truncation struct {
	IsTruncated bool   `json:"isTruncated"`
	Shown       int    `json:"shown,omitempty"`  // items returned
	Reason      string `json:"reason,omitempty"` // "max-results", "max-depth"
}

// CacheInfo describes string cache status for this response.
type CacheInfo struct {
	Hit     bool   `json:"hit"`               // true if served from the string cache
	BuiltAt string `json:"builtAt,omitempty"` // when the cache was built
	Stale   bool   `json:"stale,omitempty"`   // document changed since the cache was built
}

// Meta holds response metadata.
type Meta struct {
	Truncation *Truncation `json:"truncation,omitempty"`
	Cache      *CacheInfo  `json:"cache,omitempty"`
}

// Warning represents a non-fatal issue.
type Warning struct {
	Code    string `json:"code,omitempty"` // machine-readable code
	Message string `json:"message"`        // human-readable message
}

// Response is the standard envelope for all MCP tool responses.
type Response struct {
	SchemaVersion string      `json:"schemaVersion"`
	Data          interface{} `json:"data"`
	Meta          *Meta       `json:"meta,omitempty"`
	Warnings      []Warning   `json:"warnings,omitempty"`
	Error         *string     `json:"error,omitempty"`
	ErrorCode     string      `json:"errorCode,omitempty"`
}

// CurrentSchemaVersion is the current envelope schema version.
const CurrentSchemaVersion = "1.0"
