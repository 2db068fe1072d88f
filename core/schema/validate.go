package schema

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldError represents a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Kind    string `json:"kind"` // "required", "type", "unknown_field", ...
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult aggregates field-level errors for a whole write.
// It implements error so callers can surface it directly.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// AddError records a validation failure.
func (r *ValidationResult) AddError(field, kind string, value any, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{
		Field:   field,
		Kind:    kind,
		Value:   value,
		Message: message,
	})
}

// Error returns a combined error message.
func (r ValidationResult) Error() string {
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Merge folds another result into r.
func (r *ValidationResult) Merge(other ValidationResult) {
	if !other.Valid {
		r.Valid = false
		r.Errors = append(r.Errors, other.Errors...)
	}
}

// OK returns a passing result.
func OK() ValidationResult { return ValidationResult{Valid: true} }

// Loose phone check: optional leading +, then digits with common separators,
// at least 5 digits total.
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()./-]{3,}[0-9]$`)

// Coerce converts a raw value into the canonical representation for the
// field's type, validating it along the way. The returned value is what the
// entity engine stores. A nil raw value passes through untouched; required
// enforcement happens at a higher level where the whole record is visible.
func Coerce(f FieldMeta, raw any) (any, *FieldError) {
	if raw == nil {
		return nil, nil
	}

	switch f.Type {
	case FieldTypeText, FieldTypeMultilineText:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be a string")
		}
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			return nil, typeErr(f, raw, fmt.Sprintf("must be at most %d characters", f.MaxLength))
		}
		return s, nil

	case FieldTypeNumber:
		n, err := toNumber(raw)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, typeErr(f, raw, "must be a number")
		}
		return n, nil

	case FieldTypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be an ISO-8601 date string")
		}
		norm, err := parseDate(s)
		if err != nil {
			return nil, typeErr(f, raw, "invalid date")
		}
		return norm, nil

	case FieldTypeEmail:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be a string")
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return nil, typeErr(f, raw, "invalid email address")
		}
		return s, nil

	case FieldTypePhone:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be a string")
		}
		if !phonePattern.MatchString(strings.TrimSpace(s)) {
			return nil, typeErr(f, raw, "invalid phone number")
		}
		return s, nil

	case FieldTypeCheckbox:
		b, err := toBool(raw)
		if err != nil {
			return nil, typeErr(f, raw, "must be a boolean")
		}
		return b, nil

	case FieldTypeSelect:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be a string")
		}
		for _, opt := range f.Options {
			if opt == s {
				return s, nil
			}
		}
		return nil, &FieldError{
			Field:   f.Name,
			Kind:    "select",
			Value:   raw,
			Message: "must be one of: " + strings.Join(f.Options, ", "),
		}

	case FieldTypeRelation:
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, raw, "must be an entity id")
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, typeErr(f, raw, "must be a valid entity id")
		}
		return s, nil

	default:
		return nil, typeErr(f, raw, fmt.Sprintf("unknown field type %q", f.Type))
	}
}

// Validate checks a raw value against the field's type without returning the
// coerced form.
func Validate(f FieldMeta, raw any) *FieldError {
	_, err := Coerce(f, raw)
	return err
}

func typeErr(f FieldMeta, value any, msg string) *FieldError {
	return &FieldError{Field: f.Name, Kind: "type", Value: value, Message: msg}
}

// toNumber accepts the numeric shapes JSON decoding and Go callers produce.
func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// toBool accepts common truthy/falsy representations.
func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to bool", b)
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp and returns
// the normalized form. Calendar dates are kept as YYYY-MM-DD.
func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("invalid date %q", s)
}
