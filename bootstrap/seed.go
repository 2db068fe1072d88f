package bootstrap

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"gopkg.in/yaml.v3"
)

//go:embed modules/*.yaml
var coreModuleFiles embed.FS

// StandardLeadRule is the id of the built-in lead conversion rule.
const StandardLeadRule = "convert-lead-standard"

// CoreModules parses the embedded default module definitions: lead, contact,
// account, deal and task.
func CoreModules() ([]schema.Module, error) {
	entries, err := fs.ReadDir(coreModuleFiles, "modules")
	if err != nil {
		return nil, fmt.Errorf("read embedded modules: %w", err)
	}

	var mods []schema.Module
	for _, e := range entries {
		data, err := coreModuleFiles.ReadFile("modules/" + e.Name())
		if err != nil {
			return nil, err
		}
		mod, err := schema.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("embedded module %s: %w", e.Name(), err)
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// StandardLeadConversion is the built-in rule that turns a qualified lead
// into an account, a contact and a pipeline deal.
func StandardLeadConversion() conversion.Rule {
	return conversion.Rule{
		ID:           StandardLeadRule,
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

// seedModules installs embedded core modules plus any YAML definitions in
// dir. Modules already registered are left untouched.
func seedModules(ctx context.Context, reg *registry.Registry, dir string) error {
	core, err := CoreModules()
	if err != nil {
		return err
	}
	if err := reg.Seed(ctx, core); err != nil {
		return fmt.Errorf("seed core modules: %w", err)
	}

	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	extra, err := schema.ParseDir(dir)
	if err != nil {
		return fmt.Errorf("parse modules dir %s: %w", dir, err)
	}
	if err := reg.Seed(ctx, extra); err != nil {
		return fmt.Errorf("seed modules from %s: %w", dir, err)
	}
	return nil
}

// seedRules installs the built-in lead conversion rule plus any rules in the
// configured YAML file. Already-present rule ids are skipped.
func seedRules(ctx context.Context, store ports.RuleStore, file string) error {
	rules := []conversion.Rule{StandardLeadConversion()}

	if file != "" {
		if _, err := os.Stat(file); err == nil {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read rules file %s: %w", file, err)
			}
			var extra []conversion.Rule
			if err := yaml.Unmarshal(data, &extra); err != nil {
				return fmt.Errorf("parse rules file %s: %w", file, err)
			}
			rules = append(rules, extra...)
		}
	}

	for _, r := range rules {
		if err := r.Check(); err != nil {
			return err
		}
		if _, err := store.Get(ctx, r.ID); err == nil {
			continue
		} else if !errors.Is(err, ports.ErrNotFound) {
			return err
		}
		if err := store.Create(ctx, r); err != nil && !errors.Is(err, ports.ErrDuplicate) {
			return fmt.Errorf("seed rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// seedRoles installs the default roles on first boot: a full admin and a
// sales role with create and convert rights on the core modules. A non-empty
// role store is left untouched.
func seedRoles(ctx context.Context, store ports.RoleStore, ids ports.IDGenerator) error {
	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	admin := role.Role{
		ID:   "admin",
		Name: "Administrator",
		Actions: []role.Action{
			{ID: ids.New(), Type: role.IsAdmin, Target: role.AdminTarget},
		},
	}

	sales := role.Role{ID: "sales", Name: "Sales"}
	for _, mod := range []string{"lead", "contact", "account", "deal", "task"} {
		sales.Actions = append(sales.Actions, role.Action{
			ID: ids.New(), Type: role.CanCreate, Target: mod,
		})
	}
	sales.Actions = append(sales.Actions, role.Action{
		ID: ids.New(), Type: role.CanConvertAny, Target: "lead",
	})

	for _, r := range []role.Role{admin, sales} {
		if err := store.Create(ctx, r); err != nil && !errors.Is(err, ports.ErrDuplicate) {
			return fmt.Errorf("seed role %s: %w", r.ID, err)
		}
	}
	return nil
}
