package schema

import "testing"

const leadYAML = `
module: lead
description: Inbound prospect
fields:
  - name: email
    type: email
    group: Contact Info
    visible_in: [list, detail]
  - name: status
    type: select
    required: true
    options: [new, contacted]
`

func TestParse(t *testing.T) {
	mod, err := Parse([]byte(leadYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if mod.Name != "lead" {
		t.Errorf("expected name lead, got %q", mod.Name)
	}
	if len(mod.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(mod.Fields))
	}

	email := mod.Field("email")
	if email == nil {
		t.Fatal("email field missing")
	}
	if email.Type != FieldTypeEmail {
		t.Errorf("expected email type, got %q", email.Type)
	}
	if !email.VisibleOn(ViewList) || email.VisibleOn(ViewEdit) {
		t.Error("visible_in not parsed correctly")
	}

	status := mod.Field("status")
	if status == nil || !status.Required {
		t.Error("status should be required")
	}
	req := mod.RequiredFields()
	if len(req) != 1 || req[0].Name != "status" {
		t.Errorf("RequiredFields: expected [status], got %v", req)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			"bad module name",
			"module: Bad Name\nfields: []",
		},
		{
			"duplicate field",
			"module: lead\nfields:\n  - {name: email, type: email}\n  - {name: email, type: text}",
		},
		{
			"unknown field type",
			"module: lead\nfields:\n  - {name: x, type: blob}",
		},
		{
			"relation without relate_to",
			"module: lead\nfields:\n  - {name: account, type: relation}",
		},
		{
			"select without options",
			"module: lead\nfields:\n  - {name: stage, type: select}",
		},
		{
			"relate_to on non-relation",
			"module: lead\nfields:\n  - {name: email, type: email, relate_to: account}",
		},
	}

	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestValidModuleName(t *testing.T) {
	for _, ok := range []string{"lead", "sales_order", "a1"} {
		if !ValidModuleName(ok) {
			t.Errorf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "Lead", "1lead", "lead-x", "lead x"} {
		if ValidModuleName(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestValidFieldName(t *testing.T) {
	for _, ok := range []string{"email", "billing_address", "line2"} {
		if !ValidFieldName(ok) {
			t.Errorf("%q should be valid", ok)
		}
	}
	// Field names end up inside json_extract path expressions; anything
	// outside the slug alphabet is rejected.
	for _, bad := range []string{"", "Email", "e-mail", "a.b", `a') OR 1=1 --`, "$x"} {
		if ValidFieldName(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}
