package mcp

import (
	"context"

	"binkb/internal/envelope"
)

// Tool represents a binkb tool exposed via MCP
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler is a function that handles a tool call and returns an envelope response.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (*envelope.Response, error)

// docIDProp is the shared optional document scope parameter.
func docIDProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Document ID to operate on (defaults to the current document)",
	}
}

// locationProp is the shared address-or-name parameter.
func locationProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Address (0x-prefixed hex or decimal) or exact symbol name",
	}
}

// GetToolDefinitions returns all tool definitions
func (s *Server) GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "listDocuments",
			Description: "List all documents loaded in the host, with the current one flagged",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "getCurrentDocument",
			Description: "Get the document that scopes operations when no docId is given",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "setCurrentDocument",
			Description: "Switch the current document",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"docId": map[string]interface{}{
						"type":        "string",
						"description": "Document ID to make current",
					},
				},
				"required": []string{"docId"},
			},
		},
		{
			Name:        "rebaseDocument",
			Description: "Move a document to a new base address. The document ID and string cache survive the rebase.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"newBase": map[string]interface{}{
						"type":        "string",
						"description": "New base address as 0x-prefixed hex",
					},
					"docId": docIDProp(),
				},
				"required": []string{"newBase"},
			},
		},
		{
			Name:        "listSegments",
			Description: "List a document's segments with address ranges and content counts",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"docId": docIDProp(),
				},
			},
		},
		{
			Name:        "getAddressInfo",
			Description: "Resolve a batch of locations (max 50) and return everything known about each: name, demangled form, segment, type, comment, containing procedure, and cross-references. Each entry succeeds or fails independently.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"locations": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Locations to inspect, each an address or exact symbol name",
					},
					"docId": docIDProp(),
				},
				"required": []string{"locations"},
			},
		},
		{
			Name:        "resolveLocations",
			Description: "Resolve a batch of locations (max 50). Each entry succeeds or fails independently.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"locations": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Locations to resolve, each an address or exact symbol name",
					},
					"docId": docIDProp(),
				},
				"required": []string{"locations"},
			},
		},
		{
			Name:        "searchNames",
			Description: "Search symbol names by regex. Matches raw and demangled forms; reads the live analysis so recent renames are visible.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regular expression to match against names",
					},
					"searchType": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"procedure", "data", "all"},
						"default":     "all",
						"description": "Restrict matches by what lives at the address",
					},
					"segment": map[string]interface{}{
						"type":        "string",
						"description": "Restrict matches to one segment",
					},
					"maxResults": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum matches to return",
					},
					"docId": docIDProp(),
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "searchStrings",
			Description: "Search cached strings by regex. Requires a built string cache; never triggers the slow host enumeration.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regular expression to match against string contents",
					},
					"segment": map[string]interface{}{
						"type":        "string",
						"description": "Restrict matches to one segment",
					},
					"maxResults": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum matches to return",
					},
					"docId": docIDProp(),
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "getStringAt",
			Description: "Get the cached string at a location",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"docId":    docIDProp(),
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "buildStringCache",
			Description: "Enumerate the document's strings through the host and persist them as the string cache. Minutes-scale on large binaries; pass background=true to run it as a job.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"background": map[string]interface{}{
						"type":        "boolean",
						"default":     false,
						"description": "Queue the build as a background job and return a job ID",
					},
					"docId": docIDProp(),
				},
			},
		},
		{
			Name:        "cacheStats",
			Description: "Report the string cache state for a document: entry count, build time, artifact path, staleness",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"docId": docIDProp(),
				},
			},
		},
		{
			Name:        "getCallGraph",
			Description: "Walk call relationships from a procedure. Cycles terminate at the repeated node; children are ordered by ascending address.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"direction": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"callers", "callees"},
						"default":     "callees",
						"description": "Which way to follow call edges",
					},
					"maxDepth": map[string]interface{}{
						"type":        "integer",
						"description": "Levels to expand below the root (root is depth 0); 0 returns the root alone, absent means the configured default",
					},
					"docId": docIDProp(),
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "decompileProcedure",
			Description: "Decompile the procedure containing a location into pseudo-C",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"docId":    docIDProp(),
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "disassembleProcedure",
			Description: "Disassemble the procedure containing a location",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"docId":    docIDProp(),
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "getDemangledName",
			Description: "Demangle a symbol name. Unmangled names pass through unchanged.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Symbol name to demangle",
					},
				},
				"required": []string{"name"},
			},
		},
		{
			Name:        "getComment",
			Description: "Get the comment at a location (empty if none)",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"docId":    docIDProp(),
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "setComment",
			Description: "Write a comment at a location. Empty text clears it. Returns the comment as applied.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"comment": map[string]interface{}{
						"type":        "string",
						"description": "Comment text; empty string clears the comment",
					},
					"docId": docIDProp(),
				},
				"required": []string{"location", "comment"},
			},
		},
		{
			Name:        "setName",
			Description: "Bind a symbol name at a location. Empty name removes the binding. Returns the name as the host applied it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Name to bind; empty string removes the binding",
					},
					"docId": docIDProp(),
				},
				"required": []string{"location", "name"},
			},
		},
		{
			Name:        "markDataType",
			Description: "Mark the data type at a location (code, procedure, int8/16/32/64, ascii, unicode, undefined, byte_array, short_array, int_array). Drops any cached string at the address.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": locationProp(),
					"type": map[string]interface{}{
						"type":        "string",
						"description": "Data type kind to mark",
					},
					"length": map[string]interface{}{
						"type":        "integer",
						"default":     1,
						"description": "Number of units to mark",
					},
					"docId": docIDProp(),
				},
				"required": []string{"location", "type"},
			},
		},
		{
			Name:        "getJobStatus",
			Description: "Get the status, progress, and result of a background job",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type":        "string",
						"description": "Job ID returned by a background operation",
					},
				},
				"required": []string{"jobId"},
			},
		},
		{
			Name:        "listJobs",
			Description: "List background jobs, newest first",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"status": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"queued", "running", "completed", "failed", "cancelled"},
						"description": "Only list jobs in this state",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum jobs to return",
					},
				},
			},
		},
		{
			Name:        "cancelJob",
			Description: "Cancel a queued or running background job",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type":        "string",
						"description": "Job ID to cancel",
					},
				},
				"required": []string{"jobId"},
			},
		},
		{
			Name:        "getStatus",
			Description: "Get binkb status: version, loaded documents, cache state, job runner occupancy",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "doctor",
			Description: "Diagnose binkb configuration and host connectivity issues",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// RegisterTools wires every tool name to its handler.
func (s *Server) RegisterTools() {
	s.tools["listDocuments"] = s.handleListDocuments
	s.tools["getCurrentDocument"] = s.handleGetCurrentDocument
	s.tools["setCurrentDocument"] = s.handleSetCurrentDocument
	s.tools["rebaseDocument"] = s.handleRebaseDocument
	s.tools["listSegments"] = s.handleListSegments
	s.tools["getAddressInfo"] = s.handleGetAddressInfo
	s.tools["resolveLocations"] = s.handleResolveLocations
	s.tools["searchNames"] = s.handleSearchNames
	s.tools["searchStrings"] = s.handleSearchStrings
	s.tools["getStringAt"] = s.handleGetStringAt
	s.tools["buildStringCache"] = s.handleBuildStringCache
	s.tools["cacheStats"] = s.handleCacheStats
	s.tools["getCallGraph"] = s.handleGetCallGraph
	s.tools["decompileProcedure"] = s.handleDecompileProcedure
	s.tools["disassembleProcedure"] = s.handleDisassembleProcedure
	s.tools["getDemangledName"] = s.handleGetDemangledName
	s.tools["getComment"] = s.handleGetComment
	s.tools["setComment"] = s.handleSetComment
	s.tools["setName"] = s.handleSetName
	s.tools["markDataType"] = s.handleMarkDataType
	s.tools["getJobStatus"] = s.handleGetJobStatus
	s.tools["listJobs"] = s.handleListJobs
	s.tools["cancelJob"] = s.handleCancelJob
	s.tools["getStatus"] = s.handleGetStatus
	s.tools["doctor"] = s.handleDoctor
}
