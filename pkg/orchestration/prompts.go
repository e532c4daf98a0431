package orchestration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/orchestra-run/queryweave/pkg/state"
)

// planContract is the JSON shape demanded of the planning LLM in
// analyze_request.
const planContract = `Respond with a single JSON object and nothing else, shaped exactly as:
{"response": string, "is_final_answer": bool, "has_sufficient_info": bool, "confidence_level": number, "tool_calls": [{"service_id": string, "method": string, "params": object}]}`

func buildAnalyzeRequestPrompt(s state.AgentState) string {
	var services strings.Builder
	if len(s.DiscoveredServices) == 0 {
		services.WriteString("(none discovered)")
	}
	for _, svc := range s.DiscoveredServices {
		fmt.Fprintf(&services, "- %s (type=%s, capabilities=%s)\n", svc.ID, svc.Type, strings.Join(svc.Capabilities, ", "))
	}
	return fmt.Sprintf(`User request: %s

Available external services:
%s

Decide whether any of these services should be called to answer the request. %s`,
		s.UserRequest, services.String(), planContract)
}

func buildGenerateSQLPrompt(s state.AgentState) string {
	var schema strings.Builder
	for table, ts := range s.SchemaDump {
		fmt.Fprintf(&schema, "TABLE %s", table)
		if db, ok := s.TableToDBMapping[table]; ok {
			fmt.Fprintf(&schema, " (database=%s)", db)
		}
		schema.WriteString("\n")
		for _, col := range ts.Columns {
			fmt.Fprintf(&schema, "  - %s %s\n", col.Name, col.Type)
		}
	}

	var previous strings.Builder
	for _, q := range s.PreviousSQLQueries {
		fmt.Fprintf(&previous, "  - %s\n", q)
	}
	if previous.Len() == 0 {
		previous.WriteString("  (none yet)")
	}

	var hint string
	if candidates := inferTableCandidates(s.UserRequest, s.SchemaDump); len(candidates) > 0 {
		hint = fmt.Sprintf("\nTables likely relevant to the request: %s\n", strings.Join(candidates, ", "))
	}

	return fmt.Sprintf(`User request: %s

Database schema:
%s
%s
Previously attempted queries (do not repeat these verbatim):
%s

Write a single read-only SQL statement (SELECT or WITH) that answers the request.
Wrap it in a fenced code block labeled sql.`, s.UserRequest, schema.String(), hint, previous.String())
}

var requestWordPattern = regexp.MustCompile(`[a-zA-Z_]{3,}`)

// inferTableCandidates matches the request's nouns against table names,
// pluralizing each word so "every order from last week" finds an "orders"
// table and "list the people" finds "people" whether the schema pluralized
// or not.
func inferTableCandidates(userRequest string, schemaDump map[string]state.TableSchema) []string {
	if len(schemaDump) == 0 {
		return nil
	}

	tables := make(map[string]string, len(schemaDump))
	for name := range schemaDump {
		tables[strings.ToLower(name)] = name
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, word := range requestWordPattern.FindAllString(userRequest, -1) {
		lower := strings.ToLower(word)
		for _, form := range []string{lower, inflection.Plural(lower), inflection.Singular(lower)} {
			if table, ok := tables[form]; ok && !seen[table] {
				seen[table] = true
				candidates = append(candidates, table)
			}
		}
	}
	return candidates
}

func buildRefineSQLPrompt(s state.AgentState, failedSQL, errorText string) string {
	return fmt.Sprintf(`User request: %s

The following SQL statement failed:
%s

Error: %s

Database schema:
%s

Write a corrected single read-only SQL statement (SELECT or WITH) that fixes the error.
Wrap it in a fenced code block labeled sql.`, s.UserRequest, failedSQL, errorText, renderSchema(s.SchemaDump))
}

func renderSchema(schemaDump map[string]state.TableSchema) string {
	var b strings.Builder
	for table, ts := range schemaDump {
		fmt.Fprintf(&b, "TABLE %s\n", table)
		for _, col := range ts.Columns {
			fmt.Fprintf(&b, "  - %s %s\n", col.Name, col.Type)
		}
	}
	return b.String()
}

func buildWideningStrategyPrompt(s state.AgentState) string {
	return fmt.Sprintf(`The query below returned zero rows:
%s

User request: %s

Suggest 1-3 concrete ways to widen the search: relax filters, try synonyms,
or widen numeric/date ranges. Be specific about which filter values to try.
Respond with plain text, no SQL.`, s.SQLQuery, s.UserRequest)
}

func buildWidenedSQLPrompt(s state.AgentState, strategy string) string {
	return fmt.Sprintf(`User request: %s

The original query returned zero rows:
%s

Widening strategy:
%s

Database schema:
%s

Write a single read-only SQL statement (SELECT or WITH) that applies this
widening strategy. Wrap it in a fenced code block labeled sql.`,
		s.UserRequest, s.SQLQuery, strategy, renderSchema(s.SchemaDump))
}

func buildSummarizePrompt(userRequest, pageBody string) string {
	return fmt.Sprintf(`User request: %s

Summarize the following page content in the context of the request, in 2-4 sentences:

%s`, userRequest, truncate(pageBody, 8000))
}

func buildResponsePrompt(s state.AgentState, evidence string) string {
	system := s.CustomSystemPrompt
	if system == "" {
		system = "Answer the user's request using only the evidence provided."
	}
	return fmt.Sprintf(`%s

User request: %s

Evidence:
%s`, system, s.UserRequest, evidence)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
