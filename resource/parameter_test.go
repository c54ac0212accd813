package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameter_ToQueryString(t *testing.T) {
	tests := []struct {
		name  string
		param Parameter
		want  string
	}{
		{
			name:  "given string value, then formats name=value",
			param: NewParameter("name", "value"),
			want:  "name=value",
		},
		{
			name:  "given string array, then joins with comma",
			param: NewParameter("name", []string{"value1", "value2"}),
			want:  "name=value1,value2",
		},
		{
			name:  "given int array, then joins with comma",
			param: NewParameter("name", []int{3, 4, 5}),
			want:  "name=3,4,5",
		},
		{
			name:  "given date time, then formats ISO-8601 seconds",
			param: NewParameter("name", time.Date(2013, 10, 15, 14, 30, 44, 0, time.UTC)),
			want:  "name=2013-10-15T14:30:44",
		},
		{
			name: "given pointer to date time, then formats ISO-8601 seconds",
			param: func() Parameter {
				d := time.Date(2013, 10, 15, 14, 30, 44, 0, time.Local)
				return NewParameter("name", &d)
			}(),
			want: "name=2013-10-15T14:30:44",
		},
		{
			name:  "given value with spaces and delimiters, then percent-encodes them",
			param: NewParameter("q", "a b&c=d"),
			want:  "q=a%20b%26c%3Dd",
		},
		{
			name:  "given array element with comma, then escapes only the element comma",
			param: NewParameter("tags", []string{"a,b", "c"}),
			want:  "tags=a%2Cb,c",
		},
		{
			name:  "given bool and float scalars in array, then formats naturally",
			param: NewParameter("mixed", []any{true, 1.5}),
			want:  "mixed=true,1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.param.ToQueryString()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameter_HasValue(t *testing.T) {
	var nilTime *time.Time

	tests := []struct {
		name  string
		param Parameter
		want  bool
	}{
		{"given nil, then has no value", NewParameter("name", nil), false},
		{"given nil time pointer, then has no value", NewParameter("name", nilTime), false},
		{"given explicit null, then has no value", NewParameter("name", Null()), false},
		{"given empty string, then has value", NewParameter("name", ""), true},
		{"given zero int, then has value", NewParameter("name", 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.param.HasValue())
		})
	}
}

func TestParameter_ToQueryString_NoValue(t *testing.T) {
	_, err := NewParameter("name", nil).ToQueryString()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParameterHasNoValue)

	var perr *ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "name", perr.Name)
}

func TestMultipleValues(t *testing.T) {
	got, err := MultipleValues.FormatParameter(NewParameter("id", []int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, "id=1&id=2", got)

	got, err = MultipleValues.FormatParameter(NewParameter("id", 7))
	require.NoError(t, err)
	assert.Equal(t, "id=7", got)
}
