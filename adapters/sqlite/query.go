package sqlite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/crmgate/ports"
)

// buildWhere translates query options into a WHERE clause over the entities
// table. Field filters reach into the JSON data column with json_extract;
// one value means equality, several mean set membership. Filter keys only
// reach this point after the engine has matched them against the module
// schema, and schema.ValidFieldName restricts field names to slug
// characters, so interpolating them into the json path is safe.
func buildWhere(moduleID string, opts ports.QueryOptions) (string, []any) {
	conditions := []string{"module_id = ?"}
	args := []any{moduleID}

	// Deterministic clause order for testability.
	keys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := opts.Filters[key]
		if len(values) == 0 {
			continue
		}

		path := fmt.Sprintf("json_extract(data, '$.%s')", key)
		if len(values) == 1 {
			conditions = append(conditions, path+" = ?")
			args = append(args, values[0])
			continue
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", path, placeholders))
		args = append(args, values...)
	}

	if opts.Search != "" {
		conditions = append(conditions, "LOWER(name) LIKE '%' || LOWER(?) || '%'")
		args = append(args, opts.Search)
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}
