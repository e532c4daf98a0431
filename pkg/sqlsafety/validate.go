package sqlsafety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/orchestra-run/queryweave/pkg/state"
)

// TableRef is a resolved FROM/JOIN table reference: the schema name (as
// bound in schema_dump, case-insensitively) and the alias it is reachable
// under in the rest of the statement (the table name itself, if no alias was
// given).
type TableRef struct {
	Table string
	Alias string
}

var tableRefPattern = regexp.MustCompile(
	`(?i)(?:FROM|JOIN)\s+"?(\w+)"?(?:\.\s*"?(\w+)"?)?(?:\s+(?:AS\s+)?"?(\w+)"?)?`)

// sqlReservedWords excludes common trailing clause keywords from being
// mistaken for an alias when a table reference has none.
var sqlReservedWords = map[string]bool{
	"where": true, "group": true, "order": true, "limit": true,
	"having": true, "on": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "outer": true, "union": true, "select": true,
}

// ParseTableReferences extracts every table reference named in FROM and all
// JOIN forms, together with its alias binding (the bare table name when no
// alias was given).
func ParseTableReferences(sqlQuery string) []TableRef {
	var refs []TableRef
	rest := sqlQuery
	for {
		loc := tableRefPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		m := tableRefPattern.FindStringSubmatch(rest)
		next := rest[loc[1]:]
		table := m[1]
		if m[2] != "" {
			table = m[2] // schema.table form: table name is the second part
		}
		alias := m[3]
		if alias != "" && sqlReservedWords[strings.ToLower(alias)] {
			alias = ""
			// The reserved word (e.g. JOIN) may open the next table reference.
			next = rest[loc[6]:]
		}
		if alias == "" {
			alias = table
		}
		refs = append(refs, TableRef{Table: table, Alias: alias})
		rest = next
	}
	return refs
}

var qualifiedColumnPattern = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)

// ValidationError describes why table/column validation failed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateAgainstSchema resolves every table reference in sqlQuery against
// schemaDump (case-insensitive, multi-database aware: a table is considered
// found if it exists in any of the configured databases), then verifies
// every qualified column reference (alias.column or table.column) names an
// existing column on its bound table. Unresolved references are reported as
// a ValidationError.
func ValidateAgainstSchema(sqlQuery string, schemaDump map[string]state.TableSchema) error {
	refs := ParseTableReferences(sqlQuery)
	if len(refs) == 0 {
		return nil
	}

	lookup := buildCaseInsensitiveLookup(schemaDump)
	aliasToTable := make(map[string]string, len(refs))

	for _, ref := range refs {
		tableSchema, ok := lookup[strings.ToLower(ref.Table)]
		if !ok {
			return &ValidationError{Message: fmt.Sprintf("table %q not found in schema", ref.Table)}
		}
		aliasToTable[strings.ToLower(ref.Alias)] = strings.ToLower(ref.Table)
		_ = tableSchema
	}

	for _, m := range qualifiedColumnPattern.FindAllStringSubmatch(sqlQuery, -1) {
		alias, column := strings.ToLower(m[1]), m[2]
		table, ok := aliasToTable[alias]
		if !ok {
			// Not a recognized alias/table binding in this statement (could
			// be a function-call-like "schema.func(" match, a CTE, or an
			// unrelated dotted literal); validation only judges bindings it
			// can positively resolve.
			continue
		}
		tableSchema := lookup[table]
		if !columnExists(tableSchema, column) {
			return &ValidationError{Message: fmt.Sprintf("column %q not found on table %q", column, table)}
		}
	}

	// An unqualified SELECT-list column can only be checked when there is no
	// join ambiguity: exactly one table in scope.
	if len(refs) == 1 {
		table := strings.ToLower(refs[0].Table)
		tableSchema := lookup[table]
		columns, err := ParseSelectColumns(sqlQuery)
		if err == nil {
			for _, col := range columns {
				if strings.Contains(col.Name, ".") || col.Name == "" || col.Name == "*" {
					continue
				}
				if !columnExists(tableSchema, col.Name) {
					return &ValidationError{Message: fmt.Sprintf("column %q not found on table %q", col.Name, table)}
				}
			}
		}
	}

	return nil
}

func buildCaseInsensitiveLookup(schemaDump map[string]state.TableSchema) map[string]state.TableSchema {
	lookup := make(map[string]state.TableSchema, len(schemaDump))
	for name, schema := range schemaDump {
		lookup[strings.ToLower(name)] = schema
	}
	return lookup
}

func columnExists(schema state.TableSchema, column string) bool {
	for _, c := range schema.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}
