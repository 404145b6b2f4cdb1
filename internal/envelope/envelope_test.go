package envelope

import (
	"encoding/json"
	"testing"

	"binkb/internal/errors"
)

func TestBuilderDefaults(t *testing.T) {
	resp := New().Data(map[string]int{"n": 1}).Build()
	if resp.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("schemaVersion = %q", resp.SchemaVersion)
	}
	if resp.Meta != nil || resp.Error != nil || resp.ErrorCode != "" {
		t.Errorf("clean response carries extras: %+v", resp)
	}
}

func TestTruncationOnlyWhenTruncated(t *testing.T) {
	resp := New().Data(nil).WithTruncation(false, 5, "maxResults").Build()
	if resp.Meta != nil {
		t.Errorf("meta set for untruncated result: %+v", resp.Meta)
	}

	resp = New().Data(nil).WithTruncation(true, 5, "maxResults").Build()
	if resp.Meta == nil || resp.Meta.Truncation == nil {
		t.Fatal("truncation meta missing")
	}
	tr := resp.Meta.Truncation
	if !tr.IsTruncated || tr.Shown != 5 || tr.Reason != "maxResults" {
		t.Errorf("truncation = %+v", tr)
	}
}

func TestErrorCarriesStableCode(t *testing.T) {
	resp := New().Data(nil).Error(errors.NewNotCached("doc-1")).Build()
	if resp.Error == nil || *resp.Error == "" {
		t.Fatal("error message missing")
	}
	if resp.ErrorCode != string(errors.NotCached) {
		t.Errorf("errorCode = %q, want NOT_CACHED", resp.ErrorCode)
	}

	// Untyped errors degrade to INTERNAL_ERROR, never an empty code.
	resp = New().Data(nil).Error(json.Unmarshal([]byte("{"), &struct{}{})).Build()
	if resp.ErrorCode != string(errors.InternalError) {
		t.Errorf("errorCode = %q, want INTERNAL_ERROR", resp.ErrorCode)
	}
}

func TestWireShape(t *testing.T) {
	resp := New().
		Data(map[string]string{"k": "v"}).
		WithCache(true, "2026-01-02T15:04:05Z", true).
		Warning("cache is stale").
		Build()

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["schemaVersion"] != "1.0" {
		t.Errorf("schemaVersion = %v", decoded["schemaVersion"])
	}
	meta := decoded["meta"].(map[string]interface{})
	cache := meta["cache"].(map[string]interface{})
	if cache["hit"] != true || cache["stale"] != true {
		t.Errorf("cache = %+v", cache)
	}
	if _, present := decoded["error"]; present {
		t.Error("error key serialized on a clean response")
	}
	warnings := decoded["warnings"].([]interface{})
	if len(warnings) != 1 {
		t.Errorf("warnings = %+v", warnings)
	}
}
