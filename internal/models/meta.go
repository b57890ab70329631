package models

import (
	"encoding/json"
	"fmt"
)

// MetaKind discriminates the value held by a MetaValue.
type MetaKind int

const (
	MetaString MetaKind = iota
	MetaNumber
	MetaBool
	MetaList
	MetaMap
)

// MetaValue is a tagged union for open-ended frontmatter fields:
// string, number, bool, list, or map. It keeps custom metadata
// structured without resorting to interface{} throughout the model.
type MetaValue struct {
	Kind  MetaKind
	Str   string
	Num   float64
	Bool  bool
	List  []MetaValue
	Keyed map[string]MetaValue
}

// NewMetaValue converts a decoded YAML/JSON value into a MetaValue.
// Unsupported types are stringified.
func NewMetaValue(v any) MetaValue {
	switch t := v.(type) {
	case string:
		return MetaValue{Kind: MetaString, Str: t}
	case bool:
		return MetaValue{Kind: MetaBool, Bool: t}
	case int:
		return MetaValue{Kind: MetaNumber, Num: float64(t)}
	case int64:
		return MetaValue{Kind: MetaNumber, Num: float64(t)}
	case float64:
		return MetaValue{Kind: MetaNumber, Num: t}
	case []any:
		list := make([]MetaValue, len(t))
		for i, item := range t {
			list[i] = NewMetaValue(item)
		}
		return MetaValue{Kind: MetaList, List: list}
	case map[string]any:
		keyed := make(map[string]MetaValue, len(t))
		for k, item := range t {
			keyed[k] = NewMetaValue(item)
		}
		return MetaValue{Kind: MetaMap, Keyed: keyed}
	default:
		return MetaValue{Kind: MetaString, Str: fmt.Sprintf("%v", v)}
	}
}

// Interface returns the plain Go value, suitable for re-encoding.
func (m MetaValue) Interface() any {
	switch m.Kind {
	case MetaString:
		return m.Str
	case MetaNumber:
		return m.Num
	case MetaBool:
		return m.Bool
	case MetaList:
		out := make([]any, len(m.List))
		for i, item := range m.List {
			out[i] = item.Interface()
		}
		return out
	case MetaMap:
		out := make(map[string]any, len(m.Keyed))
		for k, item := range m.Keyed {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes the underlying value, not the union wrapper.
func (m MetaValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Interface())
}

// UnmarshalJSON decodes into the matching union arm.
func (m *MetaValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = NewMetaValue(raw)
	return nil
}
