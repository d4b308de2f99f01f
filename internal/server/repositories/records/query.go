package records

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campusfix/campusfix/internal/models"
)

// Field names in filters and sorts come straight from query parameters, so
// they are whitelisted before being spliced into SQL.
var safeField = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// queryArgs accumulates positional arguments while conditions are compiled.
type queryArgs []any

func (q *queryArgs) add(v any) string {
	*q = append(*q, v)
	return fmt.Sprintf("$%d", len(*q))
}

// fieldExpr maps a JSON field name to the SQL expression that reads it.
// ownerId and createdAt have dedicated columns; everything else lives in the
// JSONB document.
func fieldExpr(field string) (string, bool) {
	if !safeField.MatchString(field) {
		return "", false
	}
	switch field {
	case "ownerId":
		return "owner_id", true
	case "createdAt":
		return "created_at", true
	default:
		return fmt.Sprintf("data->>'%s'", field), true
	}
}

// escapeLike neutralizes LIKE metacharacters in a user-supplied search term.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// compileFilter turns a filter into WHERE conditions, appending arguments to
// args. Fields that fail the whitelist are dropped rather than erroring, the
// same leniency FilterFromQuery applies to malformed pairs.
func compileFilter(f models.Filter, args *queryArgs) []string {
	var conds []string

	for field, value := range f.Eq {
		expr, ok := fieldExpr(field)
		if !ok {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = %s", expr, args.add(value)))
	}

	if f.Search != "" {
		var ors []string
		term := "%" + escapeLike(f.Search) + "%"
		for _, field := range f.SearchFields {
			expr, ok := fieldExpr(field)
			if !ok {
				continue
			}
			ors = append(ors, fmt.Sprintf("%s ILIKE %s", expr, args.add(term)))
		}
		if len(ors) > 0 {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}

	if f.CreatedAfter != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", args.add(f.CreatedAfter.UTC())))
	}
	if f.CreatedBefore != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", args.add(f.CreatedBefore.UTC())))
	}

	for field, set := range f.In {
		expr, ok := fieldExpr(field)
		if !ok {
			continue
		}
		conds = append(conds, fmt.Sprintf("%s = ANY(%s)", expr, args.add(set)))
	}

	return conds
}

// sortClause compiles the ORDER BY. The row id breaks ties so pagination
// stays stable.
func sortClause(s models.Sort) string {
	field, desc := s.Field, s.Desc
	if field == "" {
		field, desc = "createdAt", true
	}
	expr, ok := fieldExpr(field)
	if !ok {
		expr, desc = "created_at", true
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", expr, dir)
}
