package config

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return validate
}

// FieldError describes one invalid key.
type FieldError struct {
	// Key is the dotted config key, e.g. "retry.max_interval".
	Key     string
	Message string
}

// ValidationError lists every invalid key of a Client.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Key + ": " + f.Message
	}
	return "config: invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks c against its struct tags and the rules that span
// sections, such as a shared breaker needing Redis.
func Validate(c *Client) error {
	var fields []FieldError

	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			fields = append(fields, FieldError{Key: fieldKey(e), Message: message(e)})
		}
	}

	if c.Redis.Addr == "" {
		if c.Breaker.Enabled && c.Breaker.Shared {
			fields = append(fields, FieldError{Key: "redis.addr", Message: "is required by breaker.shared"})
		}
		if c.Cache.Enabled && c.Cache.Store == "redis" {
			fields = append(fields, FieldError{Key: "redis.addr", Message: "is required by cache.store redis"})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fieldKey drops the root struct name from the namespace.
func fieldKey(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "hostname_port":
		return "must be host:port"
	default:
		return "is invalid"
	}
}
