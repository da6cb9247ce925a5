package bus

import "encoding/json"

// castKwargs coerces decoded keyword-argument values into Go-native forms:
// json.Number becomes int64 when integral and float64 otherwise, and whole
// float64 values (the default JSON decoding of integers) become int64.
// Applied per API when its CastValues flag is set.
func castKwargs(kwargs map[string]any) map[string]any {
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		out[k] = castValue(v)
	}
	return out
}

func castValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case map[string]any:
		return castKwargs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = castValue(item)
		}
		return out
	default:
		return val
	}
}
