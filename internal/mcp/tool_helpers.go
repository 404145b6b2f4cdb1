package mcp

import (
	"fmt"

	"binkb/internal/errors"
)

// stringParam extracts an optional string parameter.
func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// requiredString extracts a mandatory string parameter.
func requiredString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok {
		return "", errors.NewInvalidFormat(key, "required string parameter is missing")
	}
	return v, nil
}

// intParam extracts an optional integer parameter. JSON numbers arrive
// as float64.
func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// boolParam extracts an optional boolean parameter.
func boolParam(params map[string]interface{}, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

// stringSliceParam extracts a mandatory array-of-strings parameter.
func stringSliceParam(params map[string]interface{}, key string) ([]string, error) {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil, errors.NewInvalidFormat(key, "required array parameter is missing")
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errors.NewInvalidFormat(key, fmt.Sprintf("element %d is not a string", i))
		}
		out = append(out, s)
	}
	return out, nil
}
