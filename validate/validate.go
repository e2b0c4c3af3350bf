// Package validate provides the stand-alone field validators used when
// inbound data needs checking beyond what the transport guarantees.
// Failures are reported as a field→reasons mapping instead of a single
// opaque error, so callers can attach every problem to its field.
package validate

import (
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Telegram usernames: latin letter first, then letters, digits and
	// underscores, 5-32 characters total.
	usernameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{4,31}$`)
	// International phone numbers after separator cleanup: +, then 10-15 digits.
	phoneRe    = regexp.MustCompile(`^\+\d{10,15}$`)
	phoneStrip = regexp.MustCompile(`[\s\-()]`)
	referralRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	// Registration errors only happen on nil funcs or empty tags.
	_ = val.RegisterValidation("tg_username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = val.RegisterValidation("intl_phone", func(fl validator.FieldLevel) bool {
		cleaned := phoneStrip.ReplaceAllString(fl.Field().String(), "")
		return phoneRe.MatchString(cleaned)
	})
	_ = val.RegisterValidation("referral_code", func(fl validator.FieldLevel) bool {
		return referralRe.MatchString(fl.Field().String())
	})
	return val
}

// FieldErrors maps a field name to the list of rules it violated.
type FieldErrors map[string][]string

// Error renders the mapping as "field: rule1, rule2; field2: rule".
func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(strings.Join(e[f], ", "))
	}
	return b.String()
}

// Struct validates a struct against its `validate` tags and collects
// every violation. It returns nil when the value is valid.
func Struct(s interface{}) FieldErrors {
	if s == nil || !isStruct(s) {
		return FieldErrors{"": {"not a struct"}}
	}

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errorsAs(err, &validationErrors) {
		return FieldErrors{"": {err.Error()}}
	}

	out := make(FieldErrors, len(validationErrors))
	for _, fieldErr := range validationErrors {
		field := fieldErr.Field()
		out[field] = append(out[field], reason(fieldErr))
	}
	return out
}

func reason(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

func isStruct(s interface{}) bool {
	r := reflect.TypeOf(s)
	if r.Kind() == reflect.Ptr {
		r = r.Elem()
	}
	return r.Kind() == reflect.Struct
}

func errorsAs(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}
