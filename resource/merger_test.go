package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerger_Merge(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		values     *Values
		wantPath   string
		wantParams []string
	}{
		{
			name:     "given single segment, then substitutes it",
			template: "company/:name",
			values:   NewValues(F("name", "company-name")),
			wantPath: "company/company-name",
		},
		{
			name:     "given multiple segments, then substitutes them in order",
			template: "company/:name/:companyType",
			values:   NewValues(F("name", "company-name"), F("companyType", "public")),
			wantPath: "company/company-name/public",
		},
		{
			name:     "given value of different case, then matches segment",
			template: "company/:name",
			values:   NewValues(F("Name", "company-name")),
			wantPath: "company/company-name",
		},
		{
			name:       "given no segments, then values become parameters",
			template:   "companies",
			values:     NewValues(F("Filter", "nasdaq")),
			wantPath:   "companies",
			wantParams: []string{"Filter"},
		},
		{
			name:       "given extra values, then keeps original casing as parameters",
			template:   "company/:id",
			values:     NewValues(F("id", 5), F("Filter", "ftse")),
			wantPath:   "company/5",
			wantParams: []string{"Filter"},
		},
		{
			name:       "given null extra value, then omits parameter",
			template:   "company/:id",
			values:     NewValues(F("id", 5), F("since", nil), F("page", 2)),
			wantPath:   "company/5",
			wantParams: []string{"page"},
		},
		{
			name:     "given parameterized host, then substitutes host and path",
			template: "http://:company.example.com/api/user/:id",
			values:   NewValues(F("company", "acme"), F("id", 5)),
			wantPath: "http://acme.example.com/api/user/5",
		},
		{
			name:     "given port in template, then port is not a segment",
			template: "http://localhost:1337/api/products/:id",
			values:   NewValues(F("id", 1)),
			wantPath: "http://localhost:1337/api/products/1",
		},
		{
			name:     "given value with slash, then path-escapes it",
			template: "files/:name",
			values:   NewValues(F("name", "a/b c")),
			wantPath: "files/a%2Fb%20c",
		},
		{
			name:     "given repeated token, then substitutes every occurrence",
			template: ":id/child/:id",
			values:   NewValues(F("id", 9)),
			wantPath: "9/child/9",
		},
	}

	m := NewMerger()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := m.Merge(New(tt.template), tt.values)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, merged.Path())
			assert.False(t, merged.HasSegments())

			names := make([]string, 0, merged.NumParameters())
			for _, p := range merged.Parameters() {
				names = append(names, p.Name)
			}
			if tt.wantParams == nil {
				assert.Empty(t, names)
			} else {
				assert.Equal(t, tt.wantParams, names)
			}
		})
	}
}

func TestMerger_Merge_Errors(t *testing.T) {
	tests := []struct {
		name        string
		template    string
		values      *Values
		wantErr     error
		wantSegment string
	}{
		{
			name:        "given null segment value, then fails with null segment",
			template:    "company/:name",
			values:      NewValues(F("name", nil)),
			wantErr:     ErrNullSegmentValue,
			wantSegment: "name",
		},
		{
			name:        "given no matching value, then fails with missing segment",
			template:    "company/:name/:type",
			values:      NewValues(F("name", "acme")),
			wantErr:     ErrMissingSegmentValue,
			wantSegment: "type",
		},
		{
			name:        "given nil values and segments, then fails",
			template:    "company/:id",
			values:      nil,
			wantErr:     ErrNoSegmentValues,
			wantSegment: "id",
		},
	}

	m := NewMerger()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Merge(New(tt.template), tt.values)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var segErr *SegmentError
			require.ErrorAs(t, err, &segErr)
			assert.Equal(t, tt.wantSegment, segErr.Segment)
			assert.Equal(t, tt.template, segErr.Template)
		})
	}
}

func TestMerger_Merge_NilValuesWithoutSegments(t *testing.T) {
	original := New("company").WithParameter("page", 1)

	merged, err := NewMerger().Merge(original, nil)
	require.NoError(t, err)

	assert.Equal(t, original, merged)
}

func TestMerger_Merge_DoesNotMutateOriginal(t *testing.T) {
	original := New("company/:id").WithParameter("page", 1)

	merged, err := NewMerger().Merge(original, NewValues(F("id", 5), F("sort", "name")))
	require.NoError(t, err)

	assert.Equal(t, "company/:id", original.Path())
	assert.Equal(t, 1, original.NumParameters())
	assert.Equal(t, "company/5", merged.Path())
	assert.Equal(t, 2, merged.NumParameters())
}

func TestMerger_Merge_DuplicateParameterLastWriteWins(t *testing.T) {
	merged, err := NewMerger().Merge(
		New("companies").WithParameter("page", 1),
		NewValues(F("page", 3)),
	)
	require.NoError(t, err)

	p, ok := merged.Parameter("page")
	require.True(t, ok)
	assert.Equal(t, "3", p.Value.String())
	assert.Equal(t, 1, merged.NumParameters())
}

func TestMerger_WithAutoParameters(t *testing.T) {
	m := NewMerger(WithAutoParameters(false))

	merged, err := m.Merge(New("company/:id"), NewValues(F("id", "body"), F("Name", "company-name")))
	require.NoError(t, err)

	assert.Equal(t, "company/body", merged.Path())
	assert.False(t, merged.HasParameters())

	enabled := m.WithAutoParameters(true)
	assert.False(t, m.AutoParameters())
	assert.True(t, enabled.AutoParameters())
}

func TestMerger_ExactNamingConvention(t *testing.T) {
	m := NewMerger(WithNamingConvention(ExactNamingConvention{}))

	_, err := m.Merge(New("company/:name"), NewValues(F("Name", "acme")))
	assert.ErrorIs(t, err, ErrMissingSegmentValue)
}

func TestMerger_Merge_Deterministic(t *testing.T) {
	m := NewMerger()
	res := New("orders/:id")
	values := NewValues(F("id", 1), F("b", 2), F("a", 3), F("c", []string{"x", "y"}))

	var wg sync.WaitGroup
	urls := make([]string, 20)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			merged, err := m.Merge(res, values)
			if err != nil {
				return
			}
			urls[i], _ = merged.URL(nil)
		}(i)
	}
	wg.Wait()

	for _, u := range urls {
		assert.Equal(t, "orders/1?b=2&a=3&c=x,y", u)
	}
}
