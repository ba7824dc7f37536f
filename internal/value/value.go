// Package value converts between native Go data and cty.Value, the tagged
// union used for every context entry.
//
// Module code may hand back ordinary Go maps, slices and scalars; the engine
// only ever stores cty values, which makes serialisation of a context total.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Null is the untyped null value.
var Null = cty.NullVal(cty.DynamicPseudoType)

// FromGo converts a native Go value into its equivalent cty.Value.
//
// Maps become objects, slices and arrays become tuples. Structs are converted
// through their `cty` field tags. Anything with no cty form (untagged
// structs, errors, funcs, channels, NaN) is kept as its fmt.Sprint string, so
// the conversion never fails.
func FromGo(v any) cty.Value {
	switch tv := v.(type) {
	case nil:
		return Null
	case cty.Value:
		return tv
	case map[string]cty.Value:
		return objectVal(tv)
	case string:
		return cty.StringVal(tv)
	case []byte:
		return cty.StringVal(string(tv))
	case bool:
		return cty.BoolVal(tv)
	case int:
		return cty.NumberIntVal(int64(tv))
	case int8:
		return cty.NumberIntVal(int64(tv))
	case int16:
		return cty.NumberIntVal(int64(tv))
	case int32:
		return cty.NumberIntVal(int64(tv))
	case int64:
		return cty.NumberIntVal(tv)
	case uint:
		return cty.NumberUIntVal(uint64(tv))
	case uint8:
		return cty.NumberUIntVal(uint64(tv))
	case uint16:
		return cty.NumberUIntVal(uint64(tv))
	case uint32:
		return cty.NumberUIntVal(uint64(tv))
	case uint64:
		return cty.NumberUIntVal(tv)
	case float32:
		return floatVal(float64(tv))
	case float64:
		return floatVal(tv)
	case json.Number:
		if n, err := cty.ParseNumberVal(string(tv)); err == nil {
			return n
		}
		return cty.StringVal(string(tv))
	case error:
		return cty.StringVal(tv.Error())
	case time.Time:
		return cty.StringVal(tv.UTC().Format(time.RFC3339Nano))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		if rv.Elem().Kind() != reflect.Struct {
			return FromGo(rv.Elem().Interface())
		}
	case reflect.Map:
		if rv.IsNil() {
			return Null
		}
		attrs := make(map[string]cty.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			attrs[fmt.Sprint(iter.Key().Interface())] = FromGo(iter.Value().Interface())
		}
		return objectVal(attrs)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null
		}
		elems := make([]cty.Value, rv.Len())
		for i := range elems {
			elems[i] = FromGo(rv.Index(i).Interface())
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal
		}
		return cty.TupleVal(elems)
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.StringVal(fmt.Sprint(v))
	}
	val, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.StringVal(fmt.Sprint(v))
	}
	return val
}

// Attributes returns the top-level entries of a mapping value. ok is false for
// anything that is not a known, non-null object or map.
func Attributes(v cty.Value) (attrs map[string]cty.Value, ok bool) {
	if v == cty.NilVal {
		return nil, false
	}
	v, _ = v.Unmark()
	if !v.IsKnown() || v.IsNull() {
		return nil, false
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, false
	}
	attrs = make(map[string]cty.Value, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, elem := it.Element()
		attrs[k.AsString()] = elem
	}
	return attrs, true
}

// ToGo converts v into plain Go data made only of nil, string, bool, int64,
// float64, map[string]any and []any. Values with no JSON form (unknowns,
// infinities, capsules) are rendered as strings.
func ToGo(v cty.Value) any {
	if v == cty.NilVal {
		return nil
	}
	v, _ = v.UnmarkDeep()
	if !v.IsKnown() {
		return "(unknown " + v.Type().FriendlyName() + ")"
	}
	if v.IsNull() {
		return nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Bool:
		return v.True()
	case ty == cty.Number:
		return numberToGo(v.AsBigFloat())
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, elem := it.Element()
			out[k.AsString()] = ToGo(elem)
		}
		return out
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			out = append(out, ToGo(elem))
		}
		return out
	default:
		return v.GoString()
	}
}

// MarshalJSON renders v as JSON. It never fails for a cty.Value.
func MarshalJSON(v cty.Value) ([]byte, error) {
	return json.Marshal(ToGo(v))
}

// SortedKeys returns the keys of attrs in lexicographic order.
func SortedKeys(attrs map[string]cty.Value) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func objectVal(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func floatVal(f float64) cty.Value {
	if math.IsNaN(f) {
		return cty.StringVal("NaN")
	}
	return cty.NumberFloatVal(f)
}

func numberToGo(bf *big.Float) any {
	if bf.IsInf() {
		if bf.Sign() > 0 {
			return "+Inf"
		}
		return "-Inf"
	}
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return i
		}
		return bf.Text('f', -1)
	}
	f, _ := bf.Float64()
	return f
}
