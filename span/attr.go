package span

import (
	"math"

	"go.opentelemetry.io/otel/attribute"
)

// KeyValue converts a dynamically typed value into an attribute. It reports
// false for unsupported types, empty keys and non-finite floats.
func KeyValue(key string, value any) (attribute.KeyValue, bool) {
	if key == "" {
		return attribute.KeyValue{}, false
	}
	k := attribute.Key(key)

	var kv attribute.KeyValue
	switch v := value.(type) {
	case string:
		kv = k.String(v)
	case bool:
		kv = k.Bool(v)
	case int:
		kv = k.Int(v)
	case int32:
		kv = k.Int64(int64(v))
	case int64:
		kv = k.Int64(v)
	case uint32:
		kv = k.Int64(int64(v))
	case float32:
		kv = k.Float64(float64(v))
	case float64:
		kv = k.Float64(v)
	case []string:
		kv = k.StringSlice(v)
	case []bool:
		kv = k.BoolSlice(v)
	case []int:
		kv = k.IntSlice(v)
	case []int64:
		kv = k.Int64Slice(v)
	case []float64:
		kv = k.Float64Slice(v)
	case attribute.Value:
		kv = attribute.KeyValue{Key: k, Value: v}
	default:
		return attribute.KeyValue{}, false
	}

	if !validValue(kv) {
		return attribute.KeyValue{}, false
	}
	return kv, true
}

func validValue(kv attribute.KeyValue) bool {
	if !kv.Valid() {
		return false
	}
	switch kv.Value.Type() {
	case attribute.FLOAT64:
		return finite(kv.Value.AsFloat64())
	case attribute.FLOAT64SLICE:
		for _, f := range kv.Value.AsFloat64Slice() {
			if !finite(f) {
				return false
			}
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
