package resource

import "strings"

// ArrayFormatter renders a parameter into its query string form.
type ArrayFormatter interface {
	FormatParameter(p Parameter) (string, error)
}

// ArrayFormatterFunc adapts a function to ArrayFormatter.
type ArrayFormatterFunc func(p Parameter) (string, error)

// FormatParameter implements ArrayFormatter.
func (f ArrayFormatterFunc) FormatParameter(p Parameter) (string, error) {
	return f(p)
}

var (
	// CommaSeparated renders arrays as name=a,b,c.
	CommaSeparated ArrayFormatter = ArrayFormatterFunc(Parameter.ToQueryString)

	// MultipleValues renders arrays as name=a&name=b&name=c.
	MultipleValues ArrayFormatter = ArrayFormatterFunc(formatMultipleValues)
)

func formatMultipleValues(p Parameter) (string, error) {
	if p.Value.Kind() != KindArray {
		return p.ToQueryString()
	}
	parts := make([]string, 0, len(p.Value.items))
	for _, item := range p.Value.items {
		parts = append(parts, p.Name+"="+escapeQueryValue(item.String()))
	}
	return strings.Join(parts, "&"), nil
}
