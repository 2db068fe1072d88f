package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/crmgate/adapters/clock"
	"github.com/artpar/crmgate/adapters/idgen"
	"github.com/artpar/crmgate/adapters/memory"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

type testEnv struct {
	engine *Engine
	reg    *registry.Registry
	store  *memory.EntityStore
	audit  *memory.AuditSink
}

// newTestEnv builds an engine over in-memory stores with the lead, account
// and deal modules registered.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	reg := registry.New(memory.NewModuleStore(), idgen.NewSequential(), zerolog.Nop())
	err := reg.Seed(ctx, []schema.Module{
		{
			Name: "lead",
			Fields: []schema.FieldMeta{
				{Name: "email", Type: schema.FieldTypeEmail},
				{Name: "company", Type: schema.FieldTypeText, MaxLength: 50},
				{Name: "status", Type: schema.FieldTypeSelect, Options: []string{"new", "contacted", "qualified"}},
			},
		},
		{Name: "account", Fields: []schema.FieldMeta{
			{Name: "website", Type: schema.FieldTypeText},
		}},
		{
			Name: "deal",
			Fields: []schema.FieldMeta{
				{Name: "amount", Type: schema.FieldTypeNumber},
				{Name: "stage", Type: schema.FieldTypeSelect, Required: true, Options: []string{"open", "won", "lost"}},
				{Name: "closed", Type: schema.FieldTypeCheckbox},
				{Name: "account", Type: schema.FieldTypeRelation, RelateTo: "account"},
			},
		},
	})
	if err != nil {
		t.Fatalf("seed modules: %v", err)
	}

	store := memory.NewEntityStore()
	audit := memory.NewAuditSink()
	eng := New(reg, store, idgen.NewSequential(), clock.NewFake(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)), audit, zerolog.Nop())

	return &testEnv{engine: eng, reg: reg, store: store, audit: audit}
}

func admin(userID string) authz.Principal {
	return authz.Principal{
		UserID: userID,
		Role: role.Role{Name: "admin", Actions: []role.Action{
			{Type: role.IsAdmin, Target: role.AdminTarget},
		}},
	}
}

func sales(userID string) authz.Principal {
	return authz.Principal{
		UserID: userID,
		Role: role.Role{Name: "sales", Actions: []role.Action{
			{Type: role.CanCreate, Target: "lead"},
			{Type: role.CanCreate, Target: "deal"},
			{Type: role.CanCreate, Target: "account"},
		}},
	}
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ent, err := env.engine.Create(ctx, sales("u1"), "lead", "Jo Smith", map[string]any{
		"email":  "jo@example.com",
		"status": "new",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ent.ID == "" || ent.OwnerID != "u1" || ent.ModuleName != "lead" {
		t.Errorf("entity fields wrong: %+v", ent)
	}
	if ent.Data["status"] != "new" {
		t.Errorf("data not stored: %v", ent.Data)
	}

	if len(env.audit.Events) != 1 || env.audit.Events[0].Action != "create" {
		t.Errorf("expected one create audit event, got %+v", env.audit.Events)
	}
}

func TestCreate_ValidationAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := sales("u1")

	cases := []struct {
		name string
		data map[string]any
	}{
		{"unknown field", map[string]any{"nickname": "jo"}},
		{"bad email", map[string]any{"email": "nope"}},
		{"bad select value", map[string]any{"status": "frozen"}},
		{"text too long", map[string]any{"company": string(make([]byte, 51))}},
	}

	for _, tc := range cases {
		_, err := env.engine.Create(ctx, p, "lead", "Jo", tc.data)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		var vr schema.ValidationResult
		if !errors.As(err, &vr) {
			t.Errorf("%s: expected ValidationResult, got %T", tc.name, err)
		}
	}

	// Nothing persisted.
	page, err := env.engine.Query(ctx, "lead", ports.QueryOptions{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("failed writes must not persist, found %d entities", page.Total)
	}
}

func TestCreate_RequiredField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Create(ctx, sales("u1"), "deal", "Big deal", map[string]any{"amount": 100})
	if err == nil {
		t.Fatal("expected required error for missing stage")
	}
	var vr schema.ValidationResult
	if !errors.As(err, &vr) {
		t.Fatalf("expected ValidationResult, got %T", err)
	}
	if len(vr.Errors) != 1 || vr.Errors[0].Field != "stage" || vr.Errors[0].Kind != "required" {
		t.Errorf("unexpected errors: %+v", vr.Errors)
	}
}

func TestCreate_NameRequired(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Create(context.Background(), sales("u1"), "lead", "", nil)
	if err == nil {
		t.Fatal("expected error for empty display name")
	}
}

func TestCreate_Forbidden(t *testing.T) {
	env := newTestEnv(t)

	noRights := authz.Principal{UserID: "u9", Role: role.Role{Name: "none"}}
	_, err := env.engine.Create(context.Background(), noRights, "lead", "Jo", nil)
	if !errors.Is(err, ports.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestCreate_RelationMustExist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := sales("u1")

	acct, err := env.engine.Create(ctx, p, "account", "Acme", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := env.engine.Create(ctx, p, "deal", "Acme deal", map[string]any{
		"stage":   "open",
		"account": acct.ID,
	}); err != nil {
		t.Errorf("existing relation should pass: %v", err)
	}

	_, err = env.engine.Create(ctx, p, "deal", "Ghost deal", map[string]any{
		"stage":   "open",
		"account": "11111111-2222-4333-8444-555555555555",
	})
	if err == nil {
		t.Fatal("expected relation error for dangling id")
	}
	var vr schema.ValidationResult
	if !errors.As(err, &vr) || vr.Errors[0].Kind != "relation" {
		t.Errorf("expected relation field error, got %v", err)
	}
}

func TestGet_NotFoundBeforeForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ent, err := env.engine.Create(ctx, sales("owner"), "lead", "Jo", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// No action on lead at all: existence is hidden.
	stranger := authz.Principal{UserID: "u2", Role: role.Role{Name: "none"}}
	if _, err := env.engine.Get(ctx, stranger, "lead", ent.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("stranger should get ErrNotFound, got %v", err)
	}

	// An action on lead but not view/edit, not owner: plain forbidden.
	colleague := sales("u3")
	if _, err := env.engine.Get(ctx, colleague, "lead", ent.ID); !errors.Is(err, ports.ErrForbidden) {
		t.Errorf("colleague should get ErrForbidden, got %v", err)
	}

	// The owner reads without any explicit view grant.
	if _, err := env.engine.Get(ctx, sales("owner"), "lead", ent.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}

	if _, err := env.engine.Get(ctx, admin("root"), "lead", "missing-id"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("unknown id should be ErrNotFound, got %v", err)
	}
}

func TestModuleScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := admin("root")

	lead, err := env.engine.Create(ctx, root, "lead", "Jo", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// An id addressed through the wrong module resolves to nothing, even for
	// an admin, on reads and on every mutation.
	if _, err := env.engine.Get(ctx, root, "deal", lead.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("get through wrong module: expected ErrNotFound, got %v", err)
	}
	if _, err := env.engine.Update(ctx, root, "deal", lead.ID, "Renamed", nil); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("update through wrong module: expected ErrNotFound, got %v", err)
	}
	if err := env.engine.Delete(ctx, root, "deal", []string{lead.ID}); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("delete through wrong module: expected ErrNotFound, got %v", err)
	}

	// Nothing was mutated.
	cur, err := env.engine.Get(ctx, root, "lead", lead.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Name != "Jo" {
		t.Errorf("wrong-module update must not land, name is %q", cur.Name)
	}
}

func TestUpdate_MergeAndClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := sales("u1")

	ent, err := env.engine.Create(ctx, owner, "lead", "Jo", map[string]any{
		"email":  "jo@example.com",
		"status": "new",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := env.engine.Update(ctx, owner, "lead", ent.ID, "", map[string]any{
		"status": "contacted",
		"email":  nil, // explicit null clears
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if got.Data["status"] != "contacted" {
		t.Errorf("status not updated: %v", got.Data)
	}
	if _, present := got.Data["email"]; present {
		t.Errorf("null should clear email: %v", got.Data)
	}
	if !got.UpdatedAt.After(ent.UpdatedAt) {
		t.Error("updated_at should advance")
	}

	// Untouched keys survive the merge.
	got, err = env.engine.Update(ctx, owner, "lead", ent.ID, "Jo Smith", map[string]any{"company": "Acme"})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if got.Data["status"] != "contacted" || got.Data["company"] != "Acme" || got.Name != "Jo Smith" {
		t.Errorf("merge wrong: %+v", got)
	}
}

func TestUpdate_RequiredCannotBeCleared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := sales("u1")

	ent, err := env.engine.Create(ctx, p, "deal", "Deal", map[string]any{"stage": "open"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.engine.Update(ctx, p, "deal", ent.ID, "", map[string]any{"stage": nil})
	if err == nil {
		t.Fatal("clearing a required field must fail")
	}
	var vr schema.ValidationResult
	if !errors.As(err, &vr) {
		t.Fatalf("expected ValidationResult, got %T", err)
	}

	// The stored record is untouched.
	cur, err := env.engine.Get(ctx, p, "deal", ent.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Data["stage"] != "open" {
		t.Errorf("stage should be unchanged, got %v", cur.Data["stage"])
	}
}

func TestUpdate_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ent, err := env.engine.Create(ctx, sales("owner"), "lead", "Jo", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.engine.Update(ctx, sales("other"), "lead", ent.ID, "", map[string]any{"status": "new"})
	if !errors.Is(err, ports.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestDelete_BatchAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mine, err := env.engine.Create(ctx, sales("u1"), "lead", "Mine", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	theirs, err := env.engine.Create(ctx, sales("u2"), "lead", "Theirs", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// One disallowed id aborts the whole batch before anything is deleted.
	err = env.engine.Delete(ctx, sales("u1"), "lead", []string{mine.ID, theirs.ID})
	if !errors.Is(err, ports.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := env.engine.Get(ctx, sales("u1"), "lead", mine.ID); err != nil {
		t.Errorf("own entity should survive aborted batch: %v", err)
	}

	// Owner deletes own records.
	if err := env.engine.Delete(ctx, sales("u1"), "lead", []string{mine.ID}); err != nil {
		t.Fatalf("delete own: %v", err)
	}
	if _, err := env.engine.Get(ctx, admin("root"), "lead", mine.ID); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Unknown id in the batch aborts too.
	if err := env.engine.Delete(ctx, admin("root"), "lead", []string{theirs.ID, "missing"}); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.engine.Get(ctx, admin("root"), "lead", theirs.ID); err != nil {
		t.Errorf("entity should survive aborted batch: %v", err)
	}
}

func TestQuery_PaginationAndFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := sales("u1")

	statuses := []string{"new", "new", "contacted", "qualified", "new"}
	for i, st := range statuses {
		if _, err := env.engine.Create(ctx, p, "lead", "Lead "+string(rune('A'+i)), map[string]any{"status": st}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := env.engine.Query(ctx, "lead", ports.QueryOptions{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("total should count the full filtered set, got %d", page.Total)
	}
	if len(page.Items) != 2 || page.Page != 2 {
		t.Errorf("wrong page: %d items, page %d", len(page.Items), page.Page)
	}

	filtered, err := env.engine.Query(ctx, "lead", ports.QueryOptions{
		Filters: map[string][]any{"status": {"new"}},
	})
	if err != nil {
		t.Fatalf("filtered query failed: %v", err)
	}
	if filtered.Total != 3 {
		t.Errorf("expected 3 new leads, got %d", filtered.Total)
	}

	multi, err := env.engine.Query(ctx, "lead", ports.QueryOptions{
		Filters: map[string][]any{"status": {"contacted", "qualified"}},
	})
	if err != nil {
		t.Fatalf("multi-value filter failed: %v", err)
	}
	if multi.Total != 2 {
		t.Errorf("expected 2 leads for set membership, got %d", multi.Total)
	}

	if _, err := env.engine.Query(ctx, "lead", ports.QueryOptions{
		Filters: map[string][]any{"favourite_colour": {"red"}},
	}); err == nil {
		t.Error("unknown filter key must be rejected")
	}

	search, err := env.engine.Query(ctx, "lead", ports.QueryOptions{Search: "lead a"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if search.Total != 1 {
		t.Errorf("case-insensitive name search expected 1, got %d", search.Total)
	}
}

func TestQuery_FilterTypeCoercion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := sales("u1")

	deals := []map[string]any{
		{"stage": "open", "amount": 100, "closed": false},
		{"stage": "won", "amount": 250.5, "closed": true},
		{"stage": "open", "amount": 100, "closed": true},
	}
	for i, data := range deals {
		if _, err := env.engine.Create(ctx, p, "deal", "Deal "+string(rune('A'+i)), data); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	// Filter values arrive from the query string as text. They must compare
	// against stored numbers and booleans, not against their string form.
	byAmount, err := env.engine.Query(ctx, "deal", ports.QueryOptions{
		Filters: map[string][]any{"amount": {"100"}},
	})
	if err != nil {
		t.Fatalf("number filter failed: %v", err)
	}
	if byAmount.Total != 2 {
		t.Errorf("string %q should match number 100, got %d deals", "100", byAmount.Total)
	}

	byClosed, err := env.engine.Query(ctx, "deal", ports.QueryOptions{
		Filters: map[string][]any{"closed": {"true"}},
	})
	if err != nil {
		t.Fatalf("checkbox filter failed: %v", err)
	}
	if byClosed.Total != 2 {
		t.Errorf("string %q should match checkbox true, got %d deals", "true", byClosed.Total)
	}

	if _, err := env.engine.Query(ctx, "deal", ports.QueryOptions{
		Filters: map[string][]any{"amount": {"lots"}},
	}); err == nil {
		t.Error("uncoercible filter value must be rejected")
	}
}

func TestQuery_LimitClamped(t *testing.T) {
	env := newTestEnv(t)

	page, err := env.engine.Query(context.Background(), "lead", ports.QueryOptions{Limit: 10000})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Limit != 200 {
		t.Errorf("limit should clamp to 200, got %d", page.Limit)
	}
}
