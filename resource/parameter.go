package resource

import (
	"fmt"
	"strings"
)

// Parameter is a named query string value.
type Parameter struct {
	Name  string
	Value Value
}

// NewParameter creates a parameter, converting v with ValueOf.
func NewParameter(name string, v any) Parameter {
	return Parameter{Name: name, Value: ValueOf(v)}
}

// HasValue reports whether the parameter carries a value. Parameters without
// a value never appear in a query string.
func (p Parameter) HasValue() bool {
	return !p.Value.IsNull()
}

// ToQueryString formats the parameter as name=value.
//
// Arrays are joined with "," after escaping each element, so the separator
// survives on the wire. Times use the ISO-8601 seconds layout.
//
// Example:
//
//	resource.NewParameter("ids", []int{3, 4, 5}).ToQueryString() // "ids=3,4,5"
func (p Parameter) ToQueryString() (string, error) {
	if !p.HasValue() {
		return "", &ParameterError{Name: p.Name, Err: ErrParameterHasNoValue}
	}
	return p.Name + "=" + formatQueryValue(p.Value), nil
}

func formatQueryValue(v Value) string {
	if v.Kind() != KindArray {
		return escapeQueryValue(v.String())
	}

	parts := make([]string, 0, len(v.items))
	for _, item := range v.items {
		parts = append(parts, escapeQueryValue(item.String()))
	}
	return strings.Join(parts, ",")
}

// ParameterError reports a parameter that could not be formatted.
type ParameterError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *ParameterError) Error() string {
	return fmt.Sprintf("resource: parameter %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParameterError) Unwrap() error {
	return e.Err
}

// escapeQueryValue percent-encodes everything outside the RFC 3986 query
// character set, plus the form delimiters "&", "=", "+", "," and "#".
func escapeQueryValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isQuerySafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isQuerySafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', ':', '@', '!', '$', '\'', '(', ')', '*', ';', '/', '?':
		return true
	}
	return false
}
