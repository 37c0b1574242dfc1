package record

import "sort"

// Clone deep-copies a value tree made of records, maps, slices and scalars.
// Plain maps are converted to records with sorted keys.
func Clone(v any) any {
	switch val := v.(type) {
	case *Record:
		if val == nil {
			return (*Record)(nil)
		}
		out := New()
		for _, k := range val.keys {
			out.Set(k, Clone(val.values[k]))
		}
		return out
	case map[string]any:
		return FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case []*Record:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// CloneRecord deep-copies r.
func CloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	return Clone(r).(*Record)
}

// FromMap converts a plain map into a record. Keys are sorted since map
// iteration order is random.
func FromMap(m map[string]any) *Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := New()
	for _, k := range keys {
		out.Set(k, Clone(m[k]))
	}
	return out
}

// IsObject reports whether v is a plain object.
func IsObject(v any) bool {
	switch val := v.(type) {
	case *Record:
		return val != nil
	case map[string]any:
		return val != nil
	default:
		return false
	}
}

// AsRecord returns v as a record when it is a plain object.
func AsRecord(v any) (*Record, bool) {
	switch val := v.(type) {
	case *Record:
		return val, val != nil
	case map[string]any:
		if val == nil {
			return nil, false
		}
		return FromMap(val), true
	default:
		return nil, false
	}
}
