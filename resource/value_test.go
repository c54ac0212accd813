package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sku string

func (s sku) String() string { return "SKU-" + string(s) }

func TestValueOf(t *testing.T) {
	var nilTime *time.Time
	var nilString *string
	name := "widget"
	when := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)

	tests := []struct {
		name     string
		in       any
		wantKind Kind
		want     string
	}{
		{name: "given nil, then null", in: nil, wantKind: KindNull, want: ""},
		{name: "given a nil time pointer, then null", in: nilTime, wantKind: KindNull, want: ""},
		{name: "given a nil string pointer, then null", in: nilString, wantKind: KindNull, want: ""},
		{name: "given a string pointer, then the dereferenced scalar", in: &name, wantKind: KindScalar, want: "widget"},
		{name: "given a bool, then a scalar", in: true, wantKind: KindScalar, want: "true"},
		{name: "given a float, then the shortest form", in: 2.50, wantKind: KindScalar, want: "2.5"},
		{name: "given a Stringer, then its String", in: sku("42"), wantKind: KindScalar, want: "SKU-42"},
		{name: "given a time, then the seconds layout", in: when, wantKind: KindTime, want: "2024-03-09T08:07:06"},
		{name: "given a time pointer, then a time", in: &when, wantKind: KindTime, want: "2024-03-09T08:07:06"},
		{name: "given int64s, then an array", in: []int64{1, 2}, wantKind: KindArray, want: "1,2"},
		{name: "given mixed items, then an array of converted items", in: []any{"a", 1, when}, wantKind: KindArray, want: "a,1,2024-03-09T08:07:06"},
		{name: "given a Value, then it is kept", in: Array("x"), wantKind: KindArray, want: "x"},
		{name: "given a struct, then fmt.Sprint", in: struct{ A int }{A: 1}, wantKind: KindScalar, want: "{1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValueOf(tt.in)

			assert.Equal(t, tt.wantKind, got.Kind())
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.wantKind == KindNull, got.IsNull())
		})
	}
}

func TestValue_Items(t *testing.T) {
	v := ValueOf([]string{"a", "b"})

	items := v.Items()
	items[0] = Scalar("changed")

	assert.Equal(t, "a,b", v.String())
	assert.Nil(t, Scalar("a").Items())
}

func TestValues_With(t *testing.T) {
	var empty *Values

	first := empty.With("id", 1)
	second := first.With("name", "gear")

	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Fields())
	assert.Equal(t, 1, first.Len())
	assert.Equal(t, []Field{F("id", 1), F("name", "gear")}, second.Fields())
}

func TestNewValues_CopiesFields(t *testing.T) {
	fields := []Field{F("id", 1)}

	v := NewValues(fields...)
	fields[0] = F("other", 2)

	assert.Equal(t, []Field{F("id", 1)}, v.Fields())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "null", KindNull.String())
	assert.Equal(t, "scalar", KindScalar.String())
	assert.Equal(t, "array", KindArray.String())
	assert.Equal(t, "time", KindTime.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
