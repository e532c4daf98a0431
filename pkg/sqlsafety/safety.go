package sqlsafety

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// PatternKind classifies a dangerous-SQL detection rule in the data-driven
// {kind, pattern, reason} rule table.
type PatternKind string

const (
	KindVerb       PatternKind = "verb"
	KindInjection  PatternKind = "injection"
	KindSystemCatalog PatternKind = "system_catalog"
	KindTimingProbe PatternKind = "timing_probe"
	KindFileIO     PatternKind = "file_io"
	KindComment    PatternKind = "comment"
	KindLiteral    PatternKind = "literal"
	KindFunction   PatternKind = "dangerous_function"
)

// dangerousVerbs are DML/DDL verbs rejected outright when they appear as the
// statement's leading keyword (after CTEs are allowed to precede SELECT).
var dangerousVerbs = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "TRUNCATE", "ALTER",
	"EXEC", "EXECUTE", "GRANT", "REVOKE", "MERGE", "REPLACE",
}

// dangerousFunctions is the deduplicated set of function families the
// validation screen blocks, kept to the families that actually matter for a
// generated-SELECT use case.
var dangerousFunctions = []string{
	"pg_sleep", "pg_read_file", "pg_ls_dir", "lo_import", "lo_export",
	"xp_cmdshell", "sp_executesql", "openrowset", "opendatasource",
	"load_file", "dbms_lock", "utl_http", "utl_file",
}

type patternRule struct {
	Kind    PatternKind
	Pattern *regexp.Regexp
	Reason  string
}

var patternRules = buildPatternRules()

func buildPatternRules() []patternRule {
	rules := []patternRule{
		{KindInjection, regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`), "UNION-based injection pattern"},
		{KindSystemCatalog, regexp.MustCompile(`(?i)\binformation_schema\b`), "system catalog access"},
		{KindSystemCatalog, regexp.MustCompile(`(?i)\bpg_[a-z_]+\b`), "postgres system catalog prefix"},
		{KindSystemCatalog, regexp.MustCompile(`(?i)\bsqlite_[a-z_]+\b`), "sqlite system catalog prefix"},
		{KindSystemCatalog, regexp.MustCompile(`(?i)\bxp_[a-z_]+\b`), "mssql extended-procedure prefix"},
		{KindSystemCatalog, regexp.MustCompile(`(?i)\bsp_[a-z_]+\b`), "mssql system-procedure prefix"},
		{KindTimingProbe, regexp.MustCompile(`(?i)\bSLEEP\s*\(`), "time-based probe"},
		{KindTimingProbe, regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`), "time-based probe"},
		{KindTimingProbe, regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`), "time-based probe"},
		{KindFileIO, regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`), "file read function"},
		{KindFileIO, regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b`), "file write clause"},
		{KindLiteral, regexp.MustCompile(`(?i)\b0x[0-9a-f]+\b`), "hex literal"},
		{KindLiteral, regexp.MustCompile(`(?i)\bb'[01]+'`), "binary literal"},
	}
	for _, fn := range dangerousFunctions {
		rules = append(rules, patternRule{
			Kind:    KindFunction,
			Pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(fn) + `\s*\(`),
			Reason:  "dangerous function: " + fn,
		})
	}
	return rules
}

// createDDLObject requires the bare token CREATE, but only when followed by a
// DDL-object keyword; a column named create_at must not trigger it.
var createDDLObject = regexp.MustCompile(`(?i)\bCREATE\s+(TABLE|VIEW|INDEX|DATABASE|SCHEMA|FUNCTION|PROCEDURE|TRIGGER|SEQUENCE|ROLE|USER)\b`)

// commentTokens detects the presence of a SQL comment token. Safety
// screening runs on the already-sanitized statement, where comments have
// been stripped; this check catches statements handed to Screen() directly
// without having gone through Sanitize() first (e.g. disable_sql_blocking
// toggling tests).
var commentTokens = regexp.MustCompile(`(--|/\*|#)`)

// Verdict is the outcome of the keyword/pattern/injection safety screen.
type Verdict struct {
	Safe   bool
	Reason string
	Kind   PatternKind
}

// Screen applies the keyword/pattern safety screen: the
// statement must start with SELECT or WITH, must not contain a harmful verb
// or dangerous pattern, and must not carry a SQL-injection fingerprint.
func Screen(sqlQuery string) Verdict {
	trimmed := strings.TrimSpace(sqlQuery)
	if trimmed == "" {
		return Verdict{Safe: false, Reason: "empty query", Kind: "empty"}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return Verdict{Safe: false, Reason: "statement must start with SELECT or WITH", Kind: KindVerb}
	}

	for _, verb := range dangerousVerbs {
		if containsWord(upper, verb) {
			return Verdict{Safe: false, Reason: fmt.Sprintf("disallowed statement verb: %s", verb), Kind: KindVerb}
		}
	}
	if createDDLObject.MatchString(trimmed) {
		return Verdict{Safe: false, Reason: "disallowed DDL statement: CREATE", Kind: KindVerb}
	}

	if commentTokens.MatchString(trimmed) {
		return Verdict{Safe: false, Reason: "SQL comment tokens are not permitted", Kind: KindComment}
	}

	if strings.Contains(trimmed, ";") {
		return Verdict{Safe: false, Reason: "multiple statements are not permitted", Kind: "multiple_statements"}
	}

	for _, rule := range patternRules {
		if rule.Pattern.MatchString(trimmed) {
			return Verdict{Safe: false, Reason: rule.Reason, Kind: rule.Kind}
		}
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(trimmed); isSQLi {
		return Verdict{Safe: false, Reason: fmt.Sprintf("SQL injection pattern detected (fingerprint=%s)", fingerprint), Kind: KindInjection}
	}

	return Verdict{Safe: true}
}

// containsWord reports whether word appears in upper as a standalone token
// (not as a substring of a longer identifier like create_at).
func containsWord(upper, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(upper)
}
