package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/ports"
)

// RuleStore implements ports.RuleStore using SQLite.
type RuleStore struct {
	db *DB
}

// NewRuleStore creates a new SQLite conversion rule store.
func NewRuleStore(db *DB) *RuleStore {
	return &RuleStore{db: db}
}

// Create stores a new conversion rule.
func (s *RuleStore) Create(ctx context.Context, r conversion.Rule) error {
	if err := r.Check(); err != nil {
		return err
	}
	targets, err := json.Marshal(r.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversion_rules (id, name, source_module, targets) VALUES (?, ?, ?, ?)
	`, r.ID, r.Name, r.SourceModule, string(targets))

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves a conversion rule by id.
func (s *RuleStore) Get(ctx context.Context, id string) (conversion.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_module, targets FROM conversion_rules WHERE id = ?
	`, id)
	return scanRule(row)
}

// List returns every conversion rule.
func (s *RuleStore) List(ctx context.Context) ([]conversion.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source_module, targets FROM conversion_rules ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []conversion.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (conversion.Rule, error) {
	var r conversion.Rule
	var targets string
	if err := row.Scan(&r.ID, &r.Name, &r.SourceModule, &targets); err != nil {
		if err == sql.ErrNoRows {
			return conversion.Rule{}, ports.ErrNotFound
		}
		return conversion.Rule{}, err
	}
	if err := json.Unmarshal([]byte(targets), &r.Targets); err != nil {
		return conversion.Rule{}, fmt.Errorf("unmarshal targets for rule %q: %w", r.ID, err)
	}
	return r, nil
}
