package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/ports"
)

// ModuleStore implements ports.ModuleStore using SQLite. Field metadata is
// stored as a JSON array in order, so field ordering survives round trips.
type ModuleStore struct {
	db *DB
}

// NewModuleStore creates a new SQLite module store.
func NewModuleStore(db *DB) *ModuleStore {
	return &ModuleStore{db: db}
}

// Create stores a new module.
func (s *ModuleStore) Create(ctx context.Context, mod schema.Module) error {
	fields, err := json.Marshal(mod.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO modules (id, name, description, fields, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, mod.ID, mod.Name, mod.Description, string(fields), time.Now().UTC().Format(time.RFC3339Nano))

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Update replaces a stored module definition.
func (s *ModuleStore) Update(ctx context.Context, mod schema.Module) error {
	fields, err := json.Marshal(mod.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE modules SET description = ?, fields = ? WHERE id = ?
	`, mod.Description, string(fields), mod.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// List returns every stored module.
func (s *ModuleStore) List(ctx context.Context) ([]schema.Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, fields FROM modules ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []schema.Module
	for rows.Next() {
		var mod schema.Module
		var fields string
		if err := rows.Scan(&mod.ID, &mod.Name, &mod.Description, &fields); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &mod.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for module %q: %w", mod.Name, err)
		}
		mods = append(mods, mod)
	}
	return mods, rows.Err()
}
