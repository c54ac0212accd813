// Package resource models REST resource paths: templates with named
// segments, query parameters and the merge of caller supplied values into
// both.
//
// A Resource is immutable. Every operation that changes it returns a new
// value, so a base resource can be shared by concurrent requests.
//
//	root := resource.New("https://api.example.com/api")
//	res := root.Append("company/:id/orders")
//
//	merged, err := resource.NewMerger().Merge(res, resource.NewValues(
//	    resource.F("id", 5),
//	    resource.F("status", []string{"open", "held"}),
//	))
//	// merged.Path() == "https://api.example.com/api/company/5/orders"
//	// merged.URL(nil) == ".../company/5/orders?status=open,held"
package resource

import (
	"regexp"
	"strings"
)

// segmentPattern matches ":name" tokens. A token must start with a letter or
// underscore, so ports ("host:8080") and schemes ("http://") are ignored.
var segmentPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Resource is a path template with attached query parameters.
type Resource struct {
	path       string
	parameters []Parameter
}

// New creates a resource for the given path template.
func New(path string) Resource {
	return Resource{path: path}
}

// Path returns the path template, including any unresolved tokens.
func (r Resource) Path() string {
	return r.path
}

// Segments returns the distinct token names in left-to-right order.
func (r Resource) Segments() []string {
	matches := segmentPattern.FindAllStringSubmatch(r.path, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// HasSegments reports whether the template still contains tokens.
func (r Resource) HasSegments() bool {
	return segmentPattern.MatchString(r.path)
}

// Parameters returns a copy of the query parameters in insertion order.
func (r Resource) Parameters() []Parameter {
	return append([]Parameter(nil), r.parameters...)
}

// NumParameters returns the number of query parameters.
func (r Resource) NumParameters() int {
	return len(r.parameters)
}

// HasParameters reports whether any query parameter is attached.
func (r Resource) HasParameters() bool {
	return len(r.parameters) > 0
}

// HasParameter reports whether a parameter with exactly this name exists.
func (r Resource) HasParameter(name string) bool {
	_, ok := r.Parameter(name)
	return ok
}

// Parameter returns the parameter with exactly this name.
func (r Resource) Parameter(name string) (Parameter, bool) {
	for _, p := range r.parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// WithParameter returns a copy of r with the parameter added. A parameter
// with the same name is replaced in place.
func (r Resource) WithParameter(name string, v any) Resource {
	return r.withParameters(NewParameter(name, v))
}

func (r Resource) withParameters(params ...Parameter) Resource {
	out := Resource{
		path:       r.path,
		parameters: make([]Parameter, len(r.parameters), len(r.parameters)+len(params)),
	}
	copy(out.parameters, r.parameters)

next:
	for _, p := range params {
		for i := range out.parameters {
			if out.parameters[i].Name == p.Name {
				out.parameters[i] = p
				continue next
			}
		}
		out.parameters = append(out.parameters, p)
	}
	return out
}

// Append returns a resource whose path is r's path joined with sub by a
// single "/". Parameters are kept.
func (r Resource) Append(sub string) Resource {
	out := Resource{parameters: r.Parameters()}
	switch {
	case sub == "":
		out.path = r.path
	case r.path == "":
		out.path = sub
	default:
		out.path = strings.TrimSuffix(r.path, "/") + "/" + strings.TrimPrefix(sub, "/")
	}
	return out
}

// QueryString formats the parameters that carry a value, joined with "&".
// A nil formatter uses CommaSeparated.
func (r Resource) QueryString(formatter ArrayFormatter) (string, error) {
	if formatter == nil {
		formatter = CommaSeparated
	}

	parts := make([]string, 0, len(r.parameters))
	for _, p := range r.parameters {
		if !p.HasValue() {
			continue
		}
		s, err := formatter.FormatParameter(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "&"), nil
}

// URL returns the path followed by the query string, if any.
func (r Resource) URL(formatter ArrayFormatter) (string, error) {
	qs, err := r.QueryString(formatter)
	if err != nil {
		return "", err
	}
	if qs == "" {
		return r.path, nil
	}

	sep := "?"
	if strings.Contains(r.path, "?") {
		sep = "&"
	}
	return r.path + sep + qs, nil
}

// String returns the path template.
func (r Resource) String() string {
	return r.path
}
