package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the shape of a Value.
type Kind int

const (
	// KindNull is the absence of a value.
	KindNull Kind = iota
	// KindScalar is a single value formatted with its natural string form.
	KindScalar
	// KindArray is an ordered list of values.
	KindArray
	// KindTime is a point in time.
	KindTime
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// timeLayout is ISO-8601 without offset, seconds precision.
const timeLayout = "2006-01-02T15:04:05"

// Value is a small tagged value used for segment substitution and query
// parameters. The zero Value is null.
type Value struct {
	kind   Kind
	scalar string
	items  []Value
	t      time.Time
}

// Null returns a value that carries nothing.
func Null() Value {
	return Value{}
}

// Scalar returns a scalar value. Strings, booleans, integers, floats and
// fmt.Stringer implementations are formatted without reflection; anything
// else falls back to fmt.Sprint.
func Scalar(v any) Value {
	return Value{kind: KindScalar, scalar: scalarString(v)}
}

// Array returns an array value. Each item is converted with ValueOf.
func Array(items ...any) Value {
	vals := make([]Value, 0, len(items))
	for _, item := range items {
		vals = append(vals, ValueOf(item))
	}
	return Value{kind: KindArray, items: vals}
}

// Time returns a time value.
func Time(t time.Time) Value {
	return Value{kind: KindTime, t: t}
}

// ValueOf converts a Go value into a Value.
//
// Conversion rules:
//   - nil and nil pointers: Null
//   - Value: returned as is
//   - time.Time, *time.Time: Time
//   - []string, []int, []int64, []float64, []time.Time, []any: Array
//   - *string, *int, *int64, *bool: dereferenced scalar
//   - everything else: Scalar
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case time.Time:
		return Time(x)
	case *time.Time:
		if x == nil {
			return Null()
		}
		return Time(*x)
	case *string:
		if x == nil {
			return Null()
		}
		return Scalar(*x)
	case *int:
		if x == nil {
			return Null()
		}
		return Scalar(*x)
	case *int64:
		if x == nil {
			return Null()
		}
		return Scalar(*x)
	case *bool:
		if x == nil {
			return Null()
		}
		return Scalar(*x)
	case []string:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return Array(items...)
	case []int:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return Array(items...)
	case []int64:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return Array(items...)
	case []float64:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return Array(items...)
	case []time.Time:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return Array(items...)
	case []any:
		return Array(x...)
	default:
		return Scalar(v)
	}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value carries nothing.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Items returns the elements of an array value, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return append([]Value(nil), v.items...)
}

// String returns the natural string form: arrays are comma joined and times
// use the ISO-8601 seconds layout. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindTime:
		return v.t.Format(timeLayout)
	case KindArray:
		parts := make([]string, 0, len(v.items))
		for _, item := range v.items {
			parts = append(parts, item.String())
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// Field is a named value.
type Field struct {
	Name  string
	Value Value
}

// F creates a field, converting v with ValueOf.
func F(name string, v any) Field {
	return Field{Name: name, Value: ValueOf(v)}
}

// Values is an ordered bag of named values. A nil *Values means no values
// were supplied at all, which is distinct from an empty bag.
type Values struct {
	fields []Field
}

// NewValues creates a bag from the given fields, preserving their order.
func NewValues(fields ...Field) *Values {
	return &Values{fields: append([]Field(nil), fields...)}
}

// With returns a new bag with the field appended. The receiver may be nil.
func (v *Values) With(name string, value any) *Values {
	out := &Values{}
	if v != nil {
		out.fields = append(out.fields, v.fields...)
	}
	out.fields = append(out.fields, F(name, value))
	return out
}

// Fields returns a copy of the fields in declaration order.
func (v *Values) Fields() []Field {
	if v == nil {
		return nil
	}
	return append([]Field(nil), v.fields...)
}

// Len returns the number of fields.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.fields)
}

// Valuer is implemented by payloads that can describe themselves as a value
// bag, e.g. request bodies that supply segment values.
type Valuer interface {
	ResourceValues() *Values
}
