package resource

import "net/url"

// Merger merges value bags into resources. A Merger is immutable and safe
// for concurrent use.
type Merger struct {
	naming         NamingConvention
	autoParameters bool
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithNamingConvention sets the convention used to match values to tokens.
// Default: DefaultNamingConvention.
func WithNamingConvention(nc NamingConvention) MergerOption {
	return func(m *Merger) {
		if nc != nil {
			m.naming = nc
		}
	}
}

// WithAutoParameters controls whether unconsumed values become query
// parameters. Default: true.
func WithAutoParameters(enabled bool) MergerOption {
	return func(m *Merger) {
		m.autoParameters = enabled
	}
}

// NewMerger creates a Merger.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{
		naming:         DefaultNamingConvention{},
		autoParameters: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NamingConvention returns the active naming convention.
func (m *Merger) NamingConvention() NamingConvention {
	return m.naming
}

// AutoParameters reports whether unconsumed values become parameters.
func (m *Merger) AutoParameters() bool {
	return m.autoParameters
}

// WithAutoParameters returns a copy of m with auto-parameterization set.
func (m *Merger) WithAutoParameters(enabled bool) *Merger {
	if m.autoParameters == enabled {
		return m
	}
	out := *m
	out.autoParameters = enabled
	return &out
}

// Merge substitutes the tokens of r with matching values and attaches the
// remaining values as query parameters under their declared names.
//
// Rules:
//   - values == nil: r is returned unchanged if it has no tokens,
//     otherwise ErrNoSegmentValues.
//   - every token needs a matching value (ErrMissingSegmentValue) that is
//     not null (ErrNullSegmentValue).
//   - unconsumed null values are dropped; the rest become parameters when
//     auto-parameterization is enabled.
func (m *Merger) Merge(r Resource, values *Values) (Resource, error) {
	segments := r.Segments()

	if values == nil {
		if len(segments) == 0 {
			return r, nil
		}
		return Resource{}, &SegmentError{Segment: segments[0], Template: r.path, Err: ErrNoSegmentValues}
	}

	fields := values.fields
	consumed := make([]bool, len(fields))
	replacements := make(map[string]string, len(segments))

	for _, token := range segments {
		idx := -1
		for i, f := range fields {
			if !consumed[i] && m.naming.Matches(f.Name, token) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Resource{}, &SegmentError{Segment: token, Template: r.path, Err: ErrMissingSegmentValue}
		}
		if fields[idx].Value.IsNull() {
			return Resource{}, &SegmentError{Segment: token, Template: r.path, Err: ErrNullSegmentValue}
		}

		consumed[idx] = true
		replacements[token] = url.PathEscape(fields[idx].Value.String())
	}

	path := r.path
	if len(replacements) > 0 {
		path = segmentPattern.ReplaceAllStringFunc(path, func(match string) string {
			return replacements[match[1:]]
		})
	}

	merged := Resource{path: path, parameters: r.parameters}
	if !m.autoParameters {
		return merged.withParameters(), nil
	}

	extra := make([]Parameter, 0, len(fields))
	for i, f := range fields {
		if consumed[i] || f.Value.IsNull() {
			continue
		}
		extra = append(extra, Parameter(f))
	}
	return merged.withParameters(extra...), nil
}
