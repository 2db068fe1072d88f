package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/crmgate/ports"
)

// IngestStore implements ports.IngestStore using SQLite. The (source,
// external_id) primary key is the idempotency guarantee for redelivered
// webhook payloads.
type IngestStore struct {
	db *DB
}

// NewIngestStore creates a new SQLite ingest dedup store.
func NewIngestStore(db *DB) *IngestStore {
	return &IngestStore{db: db}
}

// Lookup returns the entity id recorded for (source, externalID).
func (s *IngestStore) Lookup(ctx context.Context, source, externalID string) (string, error) {
	var entityID string
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_id FROM webhook_ingests WHERE source = ? AND external_id = ?
	`, source, externalID).Scan(&entityID)
	if err == sql.ErrNoRows {
		return "", ports.ErrNotFound
	}
	return entityID, err
}

// Record stores the dedup key.
func (s *IngestStore) Record(ctx context.Context, source, externalID, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_ingests (source, external_id, entity_id, created_at) VALUES (?, ?, ?, ?)
	`, source, externalID, entityID, time.Now().UTC().Format(timeLayout))

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}
