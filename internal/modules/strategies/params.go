package strategies

import "fmt"

// intParam reads an integer parameter, tolerating float64 values produced by
// JSON decoding and the tuner's numeric samplers.
func intParam(params map[string]interface{}, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %q: expected number, got %T", key, raw)
	}
}

// floatParam reads a float parameter, tolerating integer values
func floatParam(params map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %q: expected number, got %T", key, raw)
	}
}

// stringParam reads a string parameter
func stringParam(params map[string]interface{}, key string, def string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: expected string, got %T", key, raw)
	}
	return v, nil
}
