package convert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/crmgate/adapters/clock"
	"github.com/artpar/crmgate/adapters/idgen"
	"github.com/artpar/crmgate/adapters/memory"
	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

type convEnv struct {
	converter *Converter
	engine    *engine.Engine
	store     *memory.EntityStore
	rules     *memory.RuleStore
	audit     *memory.AuditSink
}

func newConvEnv(t *testing.T) *convEnv {
	t.Helper()
	ctx := context.Background()

	reg := registry.New(memory.NewModuleStore(), idgen.NewSequential(), zerolog.Nop())
	err := reg.Seed(ctx, []schema.Module{
		{
			Name: "lead",
			Fields: []schema.FieldMeta{
				{Name: "email", Type: schema.FieldTypeEmail},
				{Name: "phone", Type: schema.FieldTypePhone},
				{Name: "company", Type: schema.FieldTypeText},
			},
		},
		{Name: "account", Fields: []schema.FieldMeta{
			{Name: "phone", Type: schema.FieldTypePhone},
		}},
		{Name: "contact", Fields: []schema.FieldMeta{
			{Name: "email", Type: schema.FieldTypeEmail},
			{Name: "phone", Type: schema.FieldTypePhone},
		}},
		{Name: "deal", Fields: []schema.FieldMeta{
			{Name: "amount", Type: schema.FieldTypeNumber},
			{Name: "stage", Type: schema.FieldTypeSelect, Required: true,
				Options: []string{"prospecting", "won", "lost"}},
		}},
	})
	if err != nil {
		t.Fatalf("seed modules: %v", err)
	}

	store := memory.NewEntityStore()
	audit := memory.NewAuditSink()
	clk := clock.NewFake(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	eng := engine.New(reg, store, idgen.NewSequential(), clk, audit, zerolog.Nop())

	rules := memory.NewRuleStore()
	conv := New(reg, eng, store, rules, clk, audit, zerolog.Nop())

	return &convEnv{converter: conv, engine: eng, store: store, rules: rules, audit: audit}
}

func leadRule() conversion.Rule {
	return conversion.Rule{
		ID:           "lead-standard",
		Name:         "Standard lead conversion",
		SourceModule: "lead",
		Targets: []conversion.Target{
			{
				Module:   "account",
				NameFrom: "company",
				Mapping: map[string]conversion.MappingValue{
					"phone": {FromField: "phone"},
				},
			},
			{
				Module: "contact",
				Mapping: map[string]conversion.MappingValue{
					"email": {FromField: "email"},
					"phone": {FromField: "phone"},
				},
			},
			{
				Module: "deal",
				Mapping: map[string]conversion.MappingValue{
					"stage": {Literal: "prospecting"},
				},
			},
		},
	}
}

func converterPrincipal(userID string) authz.Principal {
	return authz.Principal{
		UserID: userID,
		Role: role.Role{Name: "sales", Actions: []role.Action{
			{Type: role.CanCreate, Target: "lead"},
			{Type: role.CanConvertAny, Target: "lead"},
		}},
	}
}

func (env *convEnv) createLead(t *testing.T, p authz.Principal) entity.Entity {
	t.Helper()
	lead, err := env.engine.Create(context.Background(), p, "lead", "Jo Smith", map[string]any{
		"email":   "jo@acme.example",
		"phone":   "+1 555 0100",
		"company": "Acme Corp",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return lead
}

func TestConvert(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	p := converterPrincipal("u1")

	if err := env.rules.Create(ctx, leadRule()); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, p)

	links, err := env.converter.Convert(ctx, p, "lead", lead.ID, "lead-standard", nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}

	byModule := map[string]entity.ConversionLink{}
	for _, l := range links {
		if l.RuleID != "lead-standard" {
			t.Errorf("link missing rule id: %+v", l)
		}
		byModule[l.ModuleName] = l
	}

	acct, err := env.store.Get(ctx, byModule["account"].EntityID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if acct.Name != "Acme Corp" {
		t.Errorf("name_from should use the company field, got %q", acct.Name)
	}
	if acct.Data["phone"] != "+1 555 0100" {
		t.Errorf("mapped field missing: %v", acct.Data)
	}
	if acct.OwnerID != "u1" {
		t.Errorf("targets should inherit the source owner, got %q", acct.OwnerID)
	}

	contact, _ := env.store.Get(ctx, byModule["contact"].EntityID)
	if contact.Name != "Jo Smith" {
		t.Errorf("without name_from the source name is reused, got %q", contact.Name)
	}
	if contact.Data["email"] != "jo@acme.example" {
		t.Errorf("contact email not mapped: %v", contact.Data)
	}

	deal, _ := env.store.Get(ctx, byModule["deal"].EntityID)
	if deal.Data["stage"] != "prospecting" {
		t.Errorf("literal default not applied: %v", deal.Data)
	}

	// Lineage recorded on the source, stamped from the injected clock.
	src, _ := env.store.Get(ctx, lead.ID)
	if len(src.ConvertedInfo) != 3 || !src.ConvertedUnder("lead-standard") {
		t.Errorf("conversion links not recorded: %+v", src.ConvertedInfo)
	}
	if !src.UpdatedAt.After(lead.UpdatedAt) {
		t.Errorf("conversion should advance updated_at: %v -> %v", lead.UpdatedAt, src.UpdatedAt)
	}
	if src.UpdatedAt.After(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at should come from the fake clock, got %v", src.UpdatedAt)
	}
}

func TestConvert_WrongModulePath(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	p := converterPrincipal("u1")

	if err := env.rules.Create(ctx, leadRule()); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, p)

	if _, err := env.converter.Convert(ctx, p, "account", lead.ID, "lead-standard", nil); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("lead id addressed as account: expected ErrNotFound, got %v", err)
	}

	src, _ := env.store.Get(ctx, lead.ID)
	if len(src.ConvertedInfo) != 0 {
		t.Errorf("nothing should be converted, got %+v", src.ConvertedInfo)
	}
}

func TestConvert_AlreadyConverted(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	p := converterPrincipal("u1")

	if err := env.rules.Create(ctx, leadRule()); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, p)

	if _, err := env.converter.Convert(ctx, p, "lead", lead.ID, "lead-standard", nil); err != nil {
		t.Fatalf("first convert: %v", err)
	}

	_, err := env.converter.Convert(ctx, p, "lead", lead.ID, "lead-standard", nil)
	if !errors.Is(err, ports.ErrAlreadyConverted) {
		t.Fatalf("expected ErrAlreadyConverted, got %v", err)
	}

	// No extra targets appeared.
	page, err := env.engine.Query(ctx, "deal", ports.QueryOptions{})
	if err != nil {
		t.Fatalf("query deals: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("repeat convert must not duplicate targets, found %d deals", page.Total)
	}
}

func TestConvert_MappingError(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	p := converterPrincipal("u1")

	// Rule that cannot satisfy the deal's required stage field.
	rule := conversion.Rule{
		ID:           "broken",
		SourceModule: "lead",
		Targets: []conversion.Target{
			{Module: "deal", Mapping: map[string]conversion.MappingValue{
				"amount": {Literal: 1000},
			}},
		},
	}
	if err := env.rules.Create(ctx, rule); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, p)

	_, err := env.converter.Convert(ctx, p, "lead", lead.ID, "broken", nil)
	var me *MappingError
	if !errors.As(err, &me) {
		t.Fatalf("expected MappingError, got %v", err)
	}
	if me.Module != "deal" || len(me.Fields) != 1 || me.Fields[0] != "stage" {
		t.Errorf("unexpected mapping error: %+v", me)
	}

	// An override for the missing field unblocks the rule.
	links, err := env.converter.Convert(ctx, p, "lead", lead.ID, "broken", map[string]any{"stage": "won"})
	if err != nil {
		t.Fatalf("convert with override: %v", err)
	}
	deal, _ := env.store.Get(ctx, links[0].EntityID)
	if deal.Data["stage"] != "won" || deal.Data["amount"] != float64(1000) {
		t.Errorf("override or literal not applied: %v", deal.Data)
	}

	// The failed attempt left no targets and no lineage.
	src, _ := env.store.Get(ctx, lead.ID)
	if len(src.ConvertedInfo) != 1 {
		t.Errorf("expected exactly one conversion recorded, got %+v", src.ConvertedInfo)
	}
}

func TestConvert_WrongSourceModule(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	p := converterPrincipal("u1")

	rule := leadRule()
	rule.SourceModule = "contact"
	if err := env.rules.Create(ctx, rule); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, p)

	if _, err := env.converter.Convert(ctx, p, "lead", lead.ID, rule.ID, nil); err == nil {
		t.Error("expected module mismatch error")
	}
}

func TestConvert_Authorization(t *testing.T) {
	env := newConvEnv(t)
	ctx := context.Background()
	owner := converterPrincipal("owner")

	if err := env.rules.Create(ctx, leadRule()); err != nil {
		t.Fatalf("store rule: %v", err)
	}
	lead := env.createLead(t, owner)

	stranger := authz.Principal{UserID: "u9", Role: role.Role{Name: "none"}}
	if _, err := env.converter.Convert(ctx, stranger, "lead", lead.ID, "lead-standard", nil); !errors.Is(err, ports.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	// Ownership alone grants conversion of own records.
	ownerOnly := authz.Principal{
		UserID: "owner",
		Role:   role.Role{Name: "minimal", Actions: []role.Action{{Type: role.CanCreate, Target: "lead"}}},
	}
	if _, err := env.converter.Convert(ctx, ownerOnly, "lead", lead.ID, "lead-standard", nil); err != nil {
		t.Errorf("owner convert failed: %v", err)
	}
}

func TestConvert_UnknownRule(t *testing.T) {
	env := newConvEnv(t)
	p := converterPrincipal("u1")
	lead := env.createLead(t, p)

	_, err := env.converter.Convert(context.Background(), p, "lead", lead.ID, "missing", nil)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
