package sqlsafety

import (
	"regexp"
	"strings"
)

// knownSchemas is the allow-list used when deciding whether to keep the
// leading part of a two-part qualified identifier ("schema.table") or to
// drop it as a stray database/catalog prefix.
var knownSchemas = map[string]bool{
	"public":             true,
	"analytics":          true,
	"information_schema": true,
	"pg_catalog":         true,
}

var (
	escapedSingleQuote = regexp.MustCompile(`\\'`)
	lineComment        = regexp.MustCompile(`--[^\n]*`)
	hashComment        = regexp.MustCompile(`#[^\n]*`)
	blockComment       = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// fromOrJoinTableRef matches a table reference immediately after FROM or
	// JOIN: 2 or 3 dotted parts (bare or quoted), with an optional alias.
	// Only table references in this position are qualified-identifier
	// candidates; a bare alias.column elsewhere in the statement is left
	// untouched, per the "leave column-qualifier dots untouched" contract.
	fromOrJoinTableRef = regexp.MustCompile(
		`(?i)(FROM|JOIN)(\s+)` +
			`("?\w+"?(?:\.\s*"?\w+"?){1,2})` +
			`((?:\s+(?:AS\s+)?"?\w+"?)?)`)
)

// Sanitize normalizes an extracted SQL statement: it fixes LLM-escaped
// quoting, strips comments, collapses statement-terminator stacks to a
// single leading statement, and rewrites over-qualified identifiers. It is
// idempotent: Sanitize(Sanitize(q)) == Sanitize(q) for every q.
func Sanitize(sql string) string {
	s := sql

	s = escapedSingleQuote.ReplaceAllString(s, "'")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	s = strings.ReplaceAll(s, `\r`, "\r")
	s = strings.ReplaceAll(s, `\\`, `\`)

	s = stripComments(s)
	s = keepFirstStatement(s)
	s = rewriteQualifiedIdentifiers(s)

	return strings.TrimSpace(s)
}

func stripComments(s string) string {
	s = blockComment.ReplaceAllString(s, "")
	s = lineComment.ReplaceAllString(s, "")
	s = hashComment.ReplaceAllString(s, "")
	return s
}

// keepFirstStatement keeps only up to and including the first semicolon
// found outside a string literal, then drops the semicolon itself. If no
// semicolon is present, the input is returned unchanged.
func keepFirstStatement(s string) string {
	const (
		stateNormal = iota
		stateSingle
		stateDouble
	)
	state := stateNormal
	prev := rune(0)

	for i, ch := range s {
		switch state {
		case stateNormal:
			switch ch {
			case ';':
				return s[:i]
			case '\'':
				state = stateSingle
			case '"':
				state = stateDouble
			}
		case stateSingle:
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDouble:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = ch
	}
	return s
}

// rewriteQualifiedIdentifiers drops the leading catalog component from a
// three-part FROM/JOIN table reference (db.schema.table -> schema.table),
// and drops the leading component of a two-part reference unless it is a
// known schema name; the alias, if any, is always preserved.
func rewriteQualifiedIdentifiers(s string) string {
	return fromOrJoinTableRef.ReplaceAllStringFunc(s, func(m string) string {
		parts := fromOrJoinTableRef.FindStringSubmatch(m)
		keyword, gap, ref, alias := parts[1], parts[2], parts[3], parts[4]

		segments := splitDottedIdentifier(ref)
		switch len(segments) {
		case 3:
			ref = segments[1] + "." + segments[2]
		case 2:
			if !knownSchemas[strings.ToLower(unquote(segments[0]))] {
				ref = segments[1]
			}
		}
		return keyword + gap + ref + alias
	})
}

func splitDottedIdentifier(ref string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for _, ch := range ref {
		switch {
		case ch == '"':
			inQuote = !inQuote
			cur.WriteRune(ch)
		case ch == '.' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
