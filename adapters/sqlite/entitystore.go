package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/ports"
)

// EntityStore implements ports.EntityStore using SQLite. Record data lives
// in a schemaless JSON column; field filters go through json_extract.
type EntityStore struct {
	db *DB
}

// NewEntityStore creates a new SQLite entity store.
func NewEntityStore(db *DB) *EntityStore {
	return &EntityStore{db: db}
}

const timeLayout = time.RFC3339Nano

// Insert stores a new entity.
func (s *EntityStore) Insert(ctx context.Context, e entity.Entity) error {
	data, links, err := marshalEntity(e)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, module_id, name, data, owner_id, converted_info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ModuleID, e.Name, data, e.OwnerID, links,
		e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout))

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves an entity by id.
func (s *EntityStore) Get(ctx context.Context, id string) (entity.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, module_id, name, data, owner_id, converted_info, created_at, updated_at
		FROM entities WHERE id = ?
	`, id)
	return scanEntity(row)
}

// Update replaces the mutable columns of an entity. The write only lands if
// updated_at still matches expect; otherwise ports.ErrConflict.
func (s *EntityStore) Update(ctx context.Context, e entity.Entity, expect time.Time) error {
	data, links, err := marshalEntity(e)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, data = ?, converted_info = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`, e.Name, data, links, e.UpdatedAt.UTC().Format(timeLayout),
		e.ID, expect.UTC().Format(timeLayout))
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing row from a lost race.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, e.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ports.ErrNotFound
		}
		return ports.ErrConflict
	}
	return nil
}

// Delete removes the given entities in a single transaction.
func (s *EntityStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		result, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("entity %s: %w", id, ports.ErrNotFound)
		}
	}

	return tx.Commit()
}

// List returns a page of entities for a module plus the total count of the
// filtered set before pagination. Results are ordered by creation time so
// page concatenation is stable.
func (s *EntityStore) List(ctx context.Context, moduleID string, opts ports.QueryOptions) ([]entity.Entity, int64, error) {
	where, args := buildWhere(moduleID, opts)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `
		SELECT id, module_id, name, data, owner_id, converted_info, created_at, updated_at
		FROM entities` + where + `
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		e, err := scanEntityRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// ListRefs returns the {id, name} projection of every entity in a module.
func (s *EntityStore) ListRefs(ctx context.Context, moduleID string) ([]entity.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM entities WHERE module_id = ? ORDER BY name ASC
	`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []entity.Ref
	for rows.Next() {
		var ref entity.Ref
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Exists reports whether an entity with the given id exists in a module.
func (s *EntityStore) Exists(ctx context.Context, moduleID, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities WHERE module_id = ? AND id = ?
	`, moduleID, id).Scan(&count)
	return count > 0, err
}

// ConvertTx atomically inserts the target entities and writes the source's
// appended conversion links, stamping the source with the updated_at the
// caller set. The source update is guarded by a compare-and-swap against
// expect; a lost race rolls the targets back and returns ports.ErrConflict.
func (s *EntityStore) ConvertTx(ctx context.Context, source entity.Entity, expect time.Time, targets []entity.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin convert: %w", err)
	}
	defer tx.Rollback()

	for _, t := range targets {
		data, links, err := marshalEntity(t)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, module_id, name, data, owner_id, converted_info, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ModuleID, t.Name, data, t.OwnerID, links,
			t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout)); err != nil {
			return err
		}
	}

	links, err := json.Marshal(source.ConvertedInfo)
	if err != nil {
		return fmt.Errorf("marshal conversion links: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE entities SET converted_info = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`, string(links), source.UpdatedAt.UTC().Format(timeLayout),
		source.ID, expect.UTC().Format(timeLayout))
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrConflict
	}

	return tx.Commit()
}

// marshalEntity serializes the JSON columns of an entity.
func marshalEntity(e entity.Entity) (data string, links string, err error) {
	d, err := json.Marshal(e.Data)
	if err != nil {
		return "", "", fmt.Errorf("marshal entity data: %w", err)
	}
	info := e.ConvertedInfo
	if info == nil {
		info = []entity.ConversionLink{}
	}
	l, err := json.Marshal(info)
	if err != nil {
		return "", "", fmt.Errorf("marshal conversion links: %w", err)
	}
	return string(d), string(l), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row *sql.Row) (entity.Entity, error) {
	e, err := scanEntityRows(row)
	if err == sql.ErrNoRows {
		return entity.Entity{}, ports.ErrNotFound
	}
	return e, err
}

func scanEntityRows(row rowScanner) (entity.Entity, error) {
	var e entity.Entity
	var data, links, createdAt, updatedAt string

	if err := row.Scan(&e.ID, &e.ModuleID, &e.Name, &data, &e.OwnerID, &links, &createdAt, &updatedAt); err != nil {
		return entity.Entity{}, err
	}

	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return entity.Entity{}, fmt.Errorf("unmarshal entity %s data: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(links), &e.ConvertedInfo); err != nil {
		return entity.Entity{}, fmt.Errorf("unmarshal entity %s links: %w", e.ID, err)
	}

	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return entity.Entity{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return entity.Entity{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return e, nil
}
