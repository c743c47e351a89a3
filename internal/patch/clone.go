package patch

import (
	"encoding/json"
	"math"
	"reflect"
)

// Clone returns a deep structural copy of v. Numeric kinds are kept as they
// are so a cloned baseline stays equal to its source. Cyclic values are not
// supported.
func Clone(v any) any {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

// cloneReflect copies typed slices and maps such as []string or
// map[string]int so they do not alias the source. They stay leaves for Diff.
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out
	}
	return rv
}

func cloneElem(ev reflect.Value, typ reflect.Type) reflect.Value {
	if typ.Kind() == reflect.Interface {
		if ev.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(Clone(ev.Interface()))
	}
	return cloneReflect(ev)
}

type number struct {
	i       int64
	f       float64
	integer bool
}

func asNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), integer: true}, true
	case int8:
		return number{i: int64(n), integer: true}, true
	case int16:
		return number{i: int64(n), integer: true}, true
	case int32:
		return number{i: int64(n), integer: true}, true
	case int64:
		return number{i: n, integer: true}, true
	case uint:
		return unsignedNumber(uint64(n)), true
	case uint8:
		return number{i: int64(n), integer: true}, true
	case uint16:
		return number{i: int64(n), integer: true}, true
	case uint32:
		return number{i: int64(n), integer: true}, true
	case uint64:
		return unsignedNumber(n), true
	case float32:
		return floatNumber(float64(n)), true
	case float64:
		return floatNumber(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return number{i: i, integer: true}, true
		}
		if f, err := n.Float64(); err == nil {
			return floatNumber(f), true
		}
	}
	return number{}, false
}

func unsignedNumber(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u)}
	}
	return number{i: int64(u), integer: true}
}

func floatNumber(f float64) number {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return number{i: int64(f), integer: true}
	}
	return number{f: f}
}

func (n number) equal(o number) bool {
	if n.integer && o.integer {
		return n.i == o.i
	}
	return n.float() == o.float()
}

func (n number) float() float64 {
	if n.integer {
		return float64(n.i)
	}
	return n.f
}

// leafEqual is strict equality for scalars, with numbers compared by value
// across Go numeric kinds.
func leafEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an.equal(bn)
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}
