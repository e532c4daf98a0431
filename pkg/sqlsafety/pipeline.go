package sqlsafety

import (
	"github.com/orchestra-run/queryweave/pkg/state"
)

// Result is the outcome of running the full extract -> sanitize -> validate
// pipeline over a raw LLM response.
type Result struct {
	SQL     string
	Verdict Verdict
	Err     error // non-nil if schema validation failed
}

// Process runs extraction and sanitization unconditionally, then (unless
// skipSafetyScreen is set via disable_sql_blocking) the keyword/pattern/
// injection screen, and finally, when schemaDump is non-nil, table/column
// existence validation. skipSafetyScreen never bypasses schema validation:
// it only disables the keyword/pattern/injection screen.
func Process(rawLLMOutput string, schemaDump map[string]state.TableSchema, skipSafetyScreen bool) Result {
	extracted := ExtractSQL(rawLLMOutput)
	sanitized := Sanitize(extracted)

	if sanitized == "" {
		return Result{SQL: "", Verdict: Verdict{Safe: false, Reason: "no SQL could be extracted", Kind: "empty"}}
	}

	var verdict Verdict
	if skipSafetyScreen {
		verdict = Verdict{Safe: true}
	} else {
		verdict = Screen(sanitized)
	}
	if !verdict.Safe {
		return Result{SQL: sanitized, Verdict: verdict}
	}

	if schemaDump != nil {
		if err := ValidateAgainstSchema(sanitized, schemaDump); err != nil {
			return Result{SQL: sanitized, Verdict: verdict, Err: err}
		}
	}

	return Result{SQL: sanitized, Verdict: verdict}
}
