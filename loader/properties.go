package loader

import (
	"encoding/json"
	"fmt"
)

// decodeProperties mirrors the same jsonb-scan-shape handling duplicated
// locally in contract/validator.go and health/checks.go: the driver hands
// back []byte or string depending on the scan path, and a nil column for
// an empty jsonb is also valid.
func decodeProperties(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case []byte:
		var props map[string]interface{}
		if err := json.Unmarshal(v, &props); err != nil {
			return nil, err
		}
		return props, nil
	case string:
		var props map[string]interface{}
		if err := json.Unmarshal([]byte(v), &props); err != nil {
			return nil, err
		}
		return props, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported properties scan type %T", raw)
	}
}

func propString(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}

func propBool(props map[string]interface{}, key string) bool {
	v, _ := props[key].(bool)
	return v
}

func propInt(props map[string]interface{}, key string) int {
	switch n := props[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func propFloat64(props map[string]interface{}, key string) float64 {
	switch n := props[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func propMap(props map[string]interface{}, key string) map[string]interface{} {
	v, _ := props[key].(map[string]interface{})
	return v
}

func propStringSlice(props map[string]interface{}, key string) []string {
	raw, ok := props[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func propIntSlice(props map[string]interface{}, key string) []int {
	raw, ok := props[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch n := item.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}
