package handlers

import (
	"fmt"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
)

// FieldError is one request-shape violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fieldErrors collects every violation of a request body.
type fieldErrors []FieldError

func (e *fieldErrors) add(field, format string, args ...any) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// length checks a required string field against inclusive rune bounds. max <= 0 means unbounded.
func (e *fieldErrors) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case value == "":
		e.add(field, "%q is required", field)
	case n < min:
		e.add(field, "%q length must be at least %d characters long", field, min)
	case max > 0 && n > max:
		e.add(field, "%q length must be less than or equal to %d characters long", field, max)
	}
}

// optionalMax checks an optional string field's upper bound.
func (e *fieldErrors) optionalMax(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		e.add(field, "%q length must be less than or equal to %d characters long", field, max)
	}
}

func (e *fieldErrors) uri(field, value string) {
	switch {
	case value == "":
		e.add(field, "%q is required", field)
	case !govalidator.IsRequestURL(value):
		e.add(field, "%q must be a valid uri", field)
	}
}

func (e *fieldErrors) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	e.add(field, "%q must be one of %v", field, allowed)
}
