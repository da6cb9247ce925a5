package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToWire transforms keyword-argument values into wire-safe form: values that
// round-trip through any JSON-based transport encoding without surprises.
// Scalars pass through, time values become RFC 3339 strings, byte slices
// become strings, and arbitrary structs are flattened via JSON.
func ToWire(kwargs map[string]any) map[string]any {
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		out[k] = valueToWire(v)
	}
	return out
}

func valueToWire(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case []byte:
		return string(val)
	case map[string]any:
		return ToWire(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = valueToWire(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		// Structs, typed maps and slices take the JSON round trip.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return generic
	}
}
