package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/artpar/crmgate/adapters/clock"
	"github.com/artpar/crmgate/adapters/idgen"
	"github.com/artpar/crmgate/adapters/memory"
	"github.com/artpar/crmgate/adapters/metrics"
	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func newIngestor(t *testing.T, secret string) (*LeadIngestor, *memory.IngestStore) {
	t.Helper()
	ctx := context.Background()

	reg := registry.New(memory.NewModuleStore(), idgen.NewSequential(), zerolog.Nop())
	err := reg.Seed(ctx, []schema.Module{{
		Name: "lead",
		Fields: []schema.FieldMeta{
			{Name: "email", Type: schema.FieldTypeEmail},
			{Name: "company", Type: schema.FieldTypeText},
		},
	}})
	if err != nil {
		t.Fatalf("seed modules: %v", err)
	}

	eng := engine.New(
		reg,
		memory.NewEntityStore(),
		idgen.NewSequential(),
		clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		memory.NewAuditSink(),
		zerolog.Nop(),
	)

	ingests := memory.NewIngestStore()
	m := metrics.NewWith(prometheus.NewRegistry())
	return NewLeadIngestor(eng, ingests, secret, m, zerolog.Nop()), ingests
}

func TestIngest(t *testing.T) {
	ing, _ := newIngestor(t, "")
	ctx := context.Background()

	ent, created, err := ing.Ingest(ctx, "webform", LeadPayload{
		ExternalID: "form-42",
		Name:       "Jo Smith",
		Data:       map[string]any{"email": "jo@example.com", "company": "Acme"},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !created {
		t.Error("first delivery should create")
	}
	if ent.ModuleName != "lead" || ent.Data["company"] != "Acme" {
		t.Errorf("unexpected entity: %+v", ent)
	}
	if ent.OwnerID != "system:webhook" {
		t.Errorf("webhook leads belong to the system principal, got %q", ent.OwnerID)
	}
}

func TestIngest_Redelivery(t *testing.T) {
	ing, _ := newIngestor(t, "")
	ctx := context.Background()

	payload := LeadPayload{ExternalID: "form-1", Name: "Jo", Data: map[string]any{"email": "jo@example.com"}}

	first, created, err := ing.Ingest(ctx, "webform", payload)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}

	second, created, err := ing.Ingest(ctx, "webform", payload)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created {
		t.Error("redelivery must not create")
	}
	if second.ID != first.ID {
		t.Errorf("redelivery should return the original entity: %q vs %q", second.ID, first.ID)
	}

	// Same external id from a different source is a different lead.
	_, created, err = ing.Ingest(ctx, "partner", payload)
	if err != nil || !created {
		t.Errorf("different source should create: created=%v err=%v", created, err)
	}
}

func TestIngest_MissingExternalID(t *testing.T) {
	ing, _ := newIngestor(t, "")

	_, _, err := ing.Ingest(context.Background(), "webform", LeadPayload{Name: "Jo"})
	if err == nil {
		t.Error("expected error for missing externalId")
	}
}

func TestIngest_ValidationPropagates(t *testing.T) {
	ing, ingests := newIngestor(t, "")
	ctx := context.Background()

	_, _, err := ing.Ingest(ctx, "webform", LeadPayload{
		ExternalID: "form-9",
		Name:       "Jo",
		Data:       map[string]any{"email": "not-an-email"},
	})
	if err == nil {
		t.Fatal("invalid payload data should fail schema validation")
	}

	// No dedup key recorded for the failed create.
	if _, err := ingests.Lookup(ctx, "webform", "form-9"); err == nil {
		t.Error("failed ingest must not record a dedup key")
	}
}

func TestVerifySignature(t *testing.T) {
	ing, _ := newIngestor(t, "s3cret")
	body := []byte(`{"externalId":"x","name":"Jo"}`)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	if err := ing.VerifySignature(body, good); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := ing.VerifySignature(body, "deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
	if err := ing.VerifySignature(body, ""); !errors.Is(err, ErrBadSignature) {
		t.Errorf("configured secret makes the signature mandatory, got %v", err)
	}

	// Empty secret disables verification.
	open, _ := newIngestor(t, "")
	if err := open.VerifySignature(body, ""); err != nil {
		t.Errorf("unconfigured secret should skip verification: %v", err)
	}
}
