package sqlsafety

import (
	"regexp"
	"strings"
)

// SelectColumn is one entry of a SELECT list: its resolved name (alias, if
// aliased, otherwise the bare column/function name) and its full expression
// text.
type SelectColumn struct {
	Name string
	Expr string
}

// ParseSelectColumns extracts the column list of a single (non-nested)
// SELECT statement, used by schema validation to check unqualified column
// references against the sole table in scope. It is a best-effort,
// regex-based parser: callers treat a parse failure as "nothing to check"
// rather than a hard validation error, since validation's authoritative
// check is the qualified alias.column / table.column form.
func ParseSelectColumns(sql string) ([]SelectColumn, error) {
	sql = strings.TrimSpace(sql)
	lower := strings.ToLower(sql)

	selectIdx := strings.Index(lower, "select")
	if selectIdx == -1 {
		return nil, nil
	}

	endKeywords := []string{" from ", " where ", " group ", " order ", " limit ", " union ", " intersect ", " except ", ";"}
	endIdx := len(sql)
	for _, kw := range endKeywords {
		if idx := strings.Index(lower[selectIdx:], kw); idx != -1 && selectIdx+idx < endIdx {
			endIdx = selectIdx + idx
		}
	}

	clause := strings.TrimSpace(sql[selectIdx+len("select") : endIdx])
	if strings.HasPrefix(clause, "*") {
		return nil, nil
	}

	var result []SelectColumn
	for _, part := range splitTopLevel(clause) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, parseColumnExpr(part))
	}
	return result, nil
}

func splitTopLevel(clause string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, ch := range clause {
		switch ch {
		case '(':
			depth++
			cur.WriteRune(ch)
		case ')':
			depth--
			cur.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				continue
			}
			cur.WriteRune(ch)
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

var asAliasPattern = regexp.MustCompile(`(?i)\s+as\s+(\w+)\s*$`)

var clauseKeywords = map[string]bool{
	"from": true, "where": true, "group": true, "order": true,
	"limit": true, "and": true, "or": true, "as": true,
}

func parseColumnExpr(expr string) SelectColumn {
	expr = strings.TrimSpace(expr)

	if m := asAliasPattern.FindStringSubmatch(expr); m != nil {
		return SelectColumn{Name: strings.ToLower(m[1]), Expr: expr}
	}

	if strings.Count(expr, "(") == strings.Count(expr, ")") {
		fields := strings.Fields(expr)
		if len(fields) > 1 {
			last := fields[len(fields)-1]
			if !strings.ContainsAny(last, "()") && !clauseKeywords[strings.ToLower(last)] {
				return SelectColumn{Name: strings.ToLower(last), Expr: expr}
			}
		}
	}

	return SelectColumn{Name: extractBareColumnName(expr), Expr: expr}
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\s*\(`)

func extractBareColumnName(expr string) string {
	expr = strings.TrimSpace(expr)
	if dot := strings.LastIndex(expr, "."); dot != -1 {
		expr = expr[dot+1:]
	}
	if m := funcCallPattern.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if strings.HasPrefix(strings.ToLower(expr), "case") {
		return "case_result"
	}
	name := strings.Trim(expr, "`\"[]")
	name = regexp.MustCompile(`[^\w]`).ReplaceAllString(name, "")
	return strings.ToLower(name)
}
