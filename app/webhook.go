// Package app provides application services composed from the core engine:
// currently the inbound webhook path that turns external lead payloads into
// lead-module entities.
package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/artpar/crmgate/adapters/metrics"
	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

// LeadModule is the module webhook payloads land in.
const LeadModule = "lead"

// ErrBadSignature is returned when the payload signature does not verify.
var ErrBadSignature = errors.New("webhook signature mismatch")

// LeadPayload is one external lead delivery.
type LeadPayload struct {
	// ExternalID is the provider's id for this lead; together with the
	// source it forms the idempotency key for redeliveries.
	ExternalID string         `json:"externalId"`
	Name       string         `json:"name"`
	Data       map[string]any `json:"data"`
}

// LeadIngestor creates lead entities from webhook deliveries. Creation goes
// through the normal engine path, so payloads get the same schema validation
// as any other create.
type LeadIngestor struct {
	engine  *engine.Engine
	ingests ports.IngestStore
	secret  string
	metrics *metrics.Collector
	logger  zerolog.Logger

	// system is the principal webhook creates run under. External providers
	// have no CRM role of their own.
	system authz.Principal
}

// NewLeadIngestor creates a lead ingestor. secret is the shared HMAC key;
// empty disables signature verification.
func NewLeadIngestor(eng *engine.Engine, ingests ports.IngestStore, secret string, m *metrics.Collector, logger zerolog.Logger) *LeadIngestor {
	return &LeadIngestor{
		engine:  eng,
		ingests: ingests,
		secret:  secret,
		metrics: m,
		logger:  logger,
		system: authz.Principal{
			UserID: "system:webhook",
			Role: role.Role{
				Name:    "webhook",
				Actions: []role.Action{{Type: role.CanCreate, Target: LeadModule}},
			},
		},
	}
}

// VerifySignature checks the hex-encoded HMAC-SHA256 of body against the
// shared secret. A configured secret makes the check mandatory.
func (i *LeadIngestor) VerifySignature(body []byte, signature string) error {
	if i.secret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(i.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Ingest creates a lead entity from a payload. Redeliveries of the same
// (source, externalId) return the entity created the first time; created
// reports whether this call made a new entity.
func (i *LeadIngestor) Ingest(ctx context.Context, source string, payload LeadPayload) (ent entity.Entity, created bool, err error) {
	if payload.ExternalID == "" {
		return entity.Entity{}, false, fmt.Errorf("payload missing externalId")
	}

	if id, err := i.ingests.Lookup(ctx, source, payload.ExternalID); err == nil {
		prev, err := i.engine.Get(ctx, i.systemReader(), LeadModule, id)
		if err != nil {
			return entity.Entity{}, false, fmt.Errorf("load deduplicated lead %s: %w", id, err)
		}
		i.metrics.WebhookDuplicates.WithLabelValues(source).Inc()
		i.logger.Debug().Str("source", source).Str("external_id", payload.ExternalID).Msg("duplicate lead delivery")
		return prev, false, nil
	} else if !errors.Is(err, ports.ErrNotFound) {
		return entity.Entity{}, false, err
	}

	ent, err = i.engine.Create(ctx, i.system, LeadModule, payload.Name, payload.Data)
	if err != nil {
		return entity.Entity{}, false, err
	}

	if err := i.ingests.Record(ctx, source, payload.ExternalID, ent.ID); err != nil && !errors.Is(err, ports.ErrDuplicate) {
		// The entity exists; a failed dedup record only risks a duplicate on
		// redelivery, which the unique key prevents on the next attempt.
		i.logger.Warn().Err(err).Str("source", source).Msg("record ingest dedup key failed")
	}

	i.metrics.WebhookIngests.WithLabelValues(source).Inc()
	i.logger.Info().Str("source", source).Str("entity", ent.ID).Msg("lead ingested")
	return ent, true, nil
}

// systemReader is the system principal widened with read rights, used only
// to load a previously ingested lead for the dedup response.
func (i *LeadIngestor) systemReader() authz.Principal {
	p := i.system
	p.Role.Actions = append([]role.Action{
		{Type: role.CanViewDetailAndEditAny, Target: LeadModule},
	}, p.Role.Actions...)
	return p
}
