package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// slug-like module names: lowercase letters, digits, underscores; must start
// with a letter.
var moduleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidModuleName reports whether name is an acceptable module name.
func ValidModuleName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

// ValidFieldName reports whether name is an acceptable field name. Field
// names share the module slug shape; they end up inside JSON path
// expressions in the store, so the character set is restricted.
func ValidFieldName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

// ParseFile parses a module definition from a YAML file.
func ParseFile(path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Module{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a module definition from YAML bytes.
func Parse(data []byte) (Module, error) {
	var mod Module
	if err := yaml.Unmarshal(data, &mod); err != nil {
		return Module{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := CheckModule(mod); err != nil {
		return Module{}, fmt.Errorf("module %q: %w", mod.Name, err)
	}

	return mod, nil
}

// ParseDir parses all module definitions (*.yaml, *.yml) from a directory.
func ParseDir(dir string) ([]Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var modules []Module
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		mod, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		modules = append(modules, mod)
	}

	return modules, nil
}

// CheckModule validates a module definition as a whole: name shape, field
// name uniqueness, and per-field rules.
func CheckModule(mod Module) error {
	if !ValidModuleName(mod.Name) {
		return fmt.Errorf("invalid module name %q", mod.Name)
	}

	seen := make(map[string]bool, len(mod.Fields))
	for _, f := range mod.Fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if err := mod.CheckField(f); err != nil {
			return err
		}
	}

	return nil
}
