package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
)

// RoleStore implements ports.RoleStore using SQLite.
type RoleStore struct {
	db *DB
}

// NewRoleStore creates a new SQLite role store.
func NewRoleStore(db *DB) *RoleStore {
	return &RoleStore{db: db}
}

// Create stores a new role.
func (s *RoleStore) Create(ctx context.Context, r role.Role) error {
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, actions) VALUES (?, ?, ?)
	`, r.ID, r.Name, string(actions))

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves a role by id.
func (s *RoleStore) Get(ctx context.Context, id string) (role.Role, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, actions FROM roles WHERE id = ?`, id)
	return scanRole(row)
}

// Update modifies an existing role.
func (s *RoleStore) Update(ctx context.Context, r role.Role) error {
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE roles SET name = ?, actions = ? WHERE id = ?
	`, r.Name, string(actions), r.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ports.ErrDuplicate
		}
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

// List returns every role.
func (s *RoleStore) List(ctx context.Context) ([]role.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, actions FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []role.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func scanRole(row rowScanner) (role.Role, error) {
	var r role.Role
	var actions string
	if err := row.Scan(&r.ID, &r.Name, &actions); err != nil {
		if err == sql.ErrNoRows {
			return role.Role{}, ports.ErrNotFound
		}
		return role.Role{}, err
	}
	if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
		return role.Role{}, fmt.Errorf("unmarshal actions for role %q: %w", r.Name, err)
	}
	return r, nil
}
