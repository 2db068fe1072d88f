package schema

import (
	"strings"
	"testing"
)

func TestCoerce_Text(t *testing.T) {
	f := FieldMeta{Name: "company", Type: FieldTypeText, MaxLength: 10}

	v, err := Coerce(f, "Acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "Acme" {
		t.Errorf("expected Acme, got %v", v)
	}

	if _, err := Coerce(f, "this is far too long"); err == nil {
		t.Error("expected max length error")
	}
	if _, err := Coerce(f, 42); err == nil {
		t.Error("expected type error for non-string")
	}
}

func TestCoerce_Number(t *testing.T) {
	f := FieldMeta{Name: "amount", Type: FieldTypeNumber}

	cases := []struct {
		in   any
		want float64
	}{
		{42, 42},
		{int64(7), 7},
		{3.5, 3.5},
		{"19.99", 19.99},
	}
	for _, tc := range cases {
		v, err := Coerce(f, tc.in)
		if err != nil {
			t.Errorf("Coerce(%v): unexpected error %v", tc.in, err)
			continue
		}
		if v != tc.want {
			t.Errorf("Coerce(%v): expected %v, got %v", tc.in, tc.want, v)
		}
	}

	for _, bad := range []any{"not a number", true, []int{1}} {
		if _, err := Coerce(f, bad); err == nil {
			t.Errorf("Coerce(%v): expected error", bad)
		}
	}
}

func TestCoerce_Date(t *testing.T) {
	f := FieldMeta{Name: "close_date", Type: FieldTypeDate}

	v, err := Coerce(f, "2026-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "2026-03-15" {
		t.Errorf("expected normalized calendar date, got %v", v)
	}

	v, err = Coerce(f, "2026-03-15T10:30:00+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "2026-03-15T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %v", v)
	}

	if _, err := Coerce(f, "15/03/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestCoerce_Email(t *testing.T) {
	f := FieldMeta{Name: "email", Type: FieldTypeEmail}

	if _, err := Coerce(f, "jo@example.com"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := Coerce(f, "not-an-email"); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestCoerce_Phone(t *testing.T) {
	f := FieldMeta{Name: "phone", Type: FieldTypePhone}

	for _, ok := range []string{"+1 (555) 123-4567", "0151 2345678", "555-0100"} {
		if _, err := Coerce(f, ok); err != nil {
			t.Errorf("Coerce(%q): unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"abc", "12", ""} {
		if _, err := Coerce(f, bad); err == nil {
			t.Errorf("Coerce(%q): expected error", bad)
		}
	}
}

func TestCoerce_Checkbox(t *testing.T) {
	f := FieldMeta{Name: "done", Type: FieldTypeCheckbox}

	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"yes", true},
		{"0", false},
		{1, true},
	}
	for _, tc := range cases {
		v, err := Coerce(f, tc.in)
		if err != nil {
			t.Errorf("Coerce(%v): unexpected error %v", tc.in, err)
			continue
		}
		if v != tc.want {
			t.Errorf("Coerce(%v): expected %v, got %v", tc.in, tc.want, v)
		}
	}

	if _, err := Coerce(f, "maybe"); err == nil {
		t.Error("expected error for unparseable bool")
	}
}

func TestCoerce_Select(t *testing.T) {
	f := FieldMeta{Name: "stage", Type: FieldTypeSelect, Options: []string{"open", "won", "lost"}}

	if _, err := Coerce(f, "won"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	_, err := Coerce(f, "pending")
	if err == nil {
		t.Fatal("expected error for value outside options")
	}
	if err.Kind != "select" {
		t.Errorf("expected kind select, got %q", err.Kind)
	}
}

func TestCoerce_Relation(t *testing.T) {
	f := FieldMeta{Name: "account", Type: FieldTypeRelation, RelateTo: "account"}

	if _, err := Coerce(f, "0b96285e-0e2c-4edb-9a43-1c23f4b7a0d1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := Coerce(f, "not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestCoerce_NilPassesThrough(t *testing.T) {
	f := FieldMeta{Name: "email", Type: FieldTypeEmail, Required: true}

	v, err := Coerce(f, nil)
	if err != nil {
		t.Errorf("nil should pass through, got %v", err)
	}
	if v != nil {
		t.Errorf("expected nil, got %v", v)
	}
}

func TestValidationResult_Aggregates(t *testing.T) {
	vr := OK()
	if !vr.Valid {
		t.Fatal("OK() should be valid")
	}

	vr.AddError("email", "type", "x", "invalid email address")
	vr.AddError("stage", "required", nil, "field is required")

	if vr.Valid {
		t.Error("expected invalid after AddError")
	}
	if len(vr.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(vr.Errors))
	}

	msg := vr.Error()
	if !strings.Contains(msg, "email") || !strings.Contains(msg, "stage") {
		t.Errorf("combined message missing fields: %q", msg)
	}

	other := OK()
	other.AddError("phone", "type", nil, "invalid phone number")
	vr.Merge(other)
	if len(vr.Errors) != 3 {
		t.Errorf("expected 3 errors after merge, got %d", len(vr.Errors))
	}
}
