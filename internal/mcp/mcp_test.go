package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"binkb/internal/backend"
	"binkb/internal/config"
	"binkb/internal/engine"
	"binkb/internal/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := backend.NewMemory()
	if _, err := b.AddFixture(&backend.Fixture{
		Document: backend.FixtureDocument{Name: "app", Path: "/bin/app", Base: 0x1000, Entry: 0x1000},
		Segments: []backend.FixtureSegment{
			{Name: "__text", Start: 0x1000, End: 0x2000, Kind: "code"},
		},
		Names: []backend.FixtureName{
			{Address: 0x1000, Name: "main"},
			{Address: 0x1100, Name: "run"},
		},
		Procedures: []backend.FixtureProcedure{
			{Entry: 0x1000, Size: 0x100, Signature: "int main(void)"},
			{Entry: 0x1100, Size: 0x100},
		},
		Calls: []backend.FixtureCall{{From: 0x1000, To: 0x1100}},
	}); err != nil {
		t.Fatalf("AddFixture: %v", err)
	}
	eng := engine.New(config.DefaultConfig(), b, logging.Discard())
	return NewServer("test", eng, logging.Discard())
}

// runRequests feeds line-delimited JSON-RPC messages to the server and
// returns one decoded Message per response line.
func runRequests(t *testing.T, s *Server, lines ...string) []Message {
	t.Helper()
	s.SetStdin(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	var out bytes.Buffer
	s.SetStdout(&out)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var responses []Message
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("bad response line %q: %v", line, err)
		}
		responses = append(responses, msg)
	}
	return responses
}

// toolEnvelope unpacks the envelope JSON from a tools/call result.
func toolEnvelope(t *testing.T, msg Message) map[string]interface{} {
	t.Helper()
	if msg.Error != nil {
		t.Fatalf("unexpected JSON-RPC error: %+v", msg.Error)
	}
	result, ok := msg.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result = %T, want object", msg.Result)
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content = %+v, want one item", result["content"])
	}
	item := content[0].(map[string]interface{})
	if item["type"] != "text" {
		t.Fatalf("content type = %v, want text", item["type"])
	}
	var env map[string]interface{}
	if err := json.Unmarshal([]byte(item["text"].(string)), &env); err != nil {
		t.Fatalf("envelope not JSON: %v", err)
	}
	return env
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"test-client"}}}`,
	)
	if len(resp) != 1 {
		t.Fatalf("got %d responses, want 1", len(resp))
	}
	result := resp[0].Result.(map[string]interface{})
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "binkb" || info["version"] != "test" {
		t.Errorf("serverInfo = %+v", info)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if len(resp) != 1 {
		t.Fatalf("got %d responses, want 1", len(resp))
	}
	result := resp[0].Result.(map[string]interface{})
	tools := result["tools"].([]interface{})
	if len(tools) != 25 {
		t.Errorf("got %d tools, want 25", len(tools))
	}
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		if tool["name"] == "" || tool["description"] == "" {
			t.Errorf("incomplete tool definition: %+v", tool)
		}
		if _, ok := tool["inputSchema"].(map[string]interface{}); !ok {
			t.Errorf("tool %v has no input schema", tool["name"])
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s, `{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	if len(resp) != 1 || resp[0].Error != nil {
		t.Fatalf("ping = %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	if len(resp) != 1 || resp[0].Error == nil {
		t.Fatalf("resp = %+v, want error", resp)
	}
	if resp[0].Error.Code != MethodNotFound {
		t.Errorf("code = %d, want %d", resp[0].Error.Code, MethodNotFound)
	}
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nonexistentTool","arguments":{}}}`,
	)
	if len(resp) != 1 || resp[0].Error == nil {
		t.Fatalf("resp = %+v, want JSON-RPC error", resp)
	}
}

func TestCallToolWrapsEnvelope(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"listDocuments","arguments":{}}}`,
	)
	if len(resp) != 1 {
		t.Fatalf("got %d responses, want 1", len(resp))
	}
	env := toolEnvelope(t, resp[0])
	if env["schemaVersion"] != "1.0" {
		t.Errorf("schemaVersion = %v", env["schemaVersion"])
	}
	data, ok := env["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data = %+v, want object", env["data"])
	}
	docs, ok := data["documents"].([]interface{})
	if !ok || len(docs) != 1 {
		t.Fatalf("documents = %+v, want one document", data["documents"])
	}
	doc := docs[0].(map[string]interface{})
	if doc["name"] != "app" || doc["current"] != true {
		t.Errorf("document = %+v", doc)
	}
}

func TestDomainErrorStaysInsideEnvelope(t *testing.T) {
	s := newTestServer(t)
	// No string cache has been built, so the search fails with a domain
	// error. That must surface in the envelope, not as a JSON-RPC error.
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"searchStrings","arguments":{"pattern":"^h"}}}`,
	)
	if len(resp) != 1 {
		t.Fatalf("got %d responses, want 1", len(resp))
	}
	env := toolEnvelope(t, resp[0])
	if env["errorCode"] != "NOT_CACHED" {
		t.Errorf("errorCode = %v, want NOT_CACHED", env["errorCode"])
	}
	if env["error"] == nil || env["error"] == "" {
		t.Error("error message missing from envelope")
	}
}

func TestToolRoundTrip(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"setComment","arguments":{"location":"main","comment":"entry point"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"getComment","arguments":{"location":"0x1000"}}}`,
	)
	if len(resp) != 2 {
		t.Fatalf("got %d responses, want 2", len(resp))
	}
	env := toolEnvelope(t, resp[1])
	data := env["data"].(map[string]interface{})
	if data["comment"] != "entry point" {
		t.Errorf("comment = %v", data["comment"])
	}
	if data["address"] != "0x1000" {
		t.Errorf("address = %v", data["address"])
	}
}

func TestSearchNamesTruncationMeta(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"setName","arguments":{"location":"0x1100","name":"main_helper"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"searchNames","arguments":{"pattern":"main","maxResults":1}}}`,
	)
	env := toolEnvelope(t, resp[1])
	meta, ok := env["meta"].(map[string]interface{})
	if !ok {
		t.Fatalf("meta missing: %+v", env)
	}
	trunc := meta["truncation"].(map[string]interface{})
	if trunc["isTruncated"] != true {
		t.Errorf("truncation = %+v, want isTruncated", trunc)
	}
}

func TestGetAddressInfoBatch(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"getAddressInfo","arguments":{"locations":["main","no_such_symbol"]}}}`,
	)
	env := toolEnvelope(t, resp[0])
	data := env["data"].(map[string]interface{})
	results, ok := data["results"].([]interface{})
	if !ok || len(results) != 2 {
		t.Fatalf("results = %+v, want 2 items", data["results"])
	}

	good := results[0].(map[string]interface{})
	info, ok := good["info"].(map[string]interface{})
	if !ok {
		t.Fatalf("item 0 = %+v, want info", good)
	}
	if info["segment"] != "__text" {
		t.Errorf("segment = %v", info["segment"])
	}
	ref := info["ref"].(map[string]interface{})
	if ref["address"] != "0x1000" {
		t.Errorf("ref = %+v", ref)
	}

	// One bad location does not abort the batch.
	bad := results[1].(map[string]interface{})
	if _, has := bad["info"]; has {
		t.Errorf("item 1 = %+v, want failure", bad)
	}
	if bad["errorCode"] != "NOT_FOUND" {
		t.Errorf("errorCode = %v, want NOT_FOUND", bad["errorCode"])
	}
}

func TestCallGraphDepthParameter(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"getCallGraph","arguments":{"location":"main","maxDepth":0}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"getCallGraph","arguments":{"location":"main"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"getCallGraph","arguments":{"location":"main","maxDepth":-2}}}`,
	)
	if len(resp) != 3 {
		t.Fatalf("got %d responses, want 3", len(resp))
	}

	// Explicit 0 returns the root alone, flagged truncated.
	env := toolEnvelope(t, resp[0])
	root := env["data"].(map[string]interface{})["root"].(map[string]interface{})
	if _, has := root["children"]; has {
		t.Errorf("depth 0 expanded children: %+v", root)
	}
	meta := env["meta"].(map[string]interface{})
	if meta["truncation"].(map[string]interface{})["isTruncated"] != true {
		t.Error("depth 0 result not flagged truncated")
	}

	// Absent maxDepth means the configured default and expands.
	env = toolEnvelope(t, resp[1])
	root = env["data"].(map[string]interface{})["root"].(map[string]interface{})
	children, ok := root["children"].([]interface{})
	if !ok || len(children) != 1 {
		t.Errorf("default depth children = %+v, want the callee", root["children"])
	}

	env = toolEnvelope(t, resp[2])
	if env["errorCode"] != "INVALID_FORMAT" {
		t.Errorf("negative maxDepth errorCode = %v, want INVALID_FORMAT", env["errorCode"])
	}
}

func TestOversizedLineStopsServer(t *testing.T) {
	s := newTestServer(t)
	s.SetStdin(strings.NewReader(strings.Repeat("x", MaxMessageSize+1) + "\n"))
	var out bytes.Buffer
	s.SetStdout(&out)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Start returned nil for an unreadable stream")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept running on a persistent read failure")
	}
}

func TestNotificationGetsNoResponse(t *testing.T) {
	s := newTestServer(t)
	resp := runRequests(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)
	if len(resp) != 1 {
		t.Fatalf("got %d responses, want 1 (notification must be silent)", len(resp))
	}
	var id float64
	if v, ok := resp[0].Id.(float64); ok {
		id = v
	}
	if id != 1 {
		t.Errorf("response id = %v, want 1", resp[0].Id)
	}
}
