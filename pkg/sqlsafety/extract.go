// Package sqlsafety implements the three-stage SQL Safety & Rewriting
// pipeline applied by every SQL-touching orchestration node: extraction of a
// bare statement from verbose LLM output, sanitization of the extracted
// text, and validation against a known schema.
package sqlsafety

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedSQLBlock = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	sqlGeneratedTag = regexp.MustCompile(`(?is)<sql_generated>(.*?)</sql_generated>`)
	sqlQueryTag     = regexp.MustCompile(`(?is)<sql_query>(.*?)</sql_query>`)
	sqlCodeTag      = regexp.MustCompile(`(?is)<sql_code>(.*?)</sql_code>`)
	ponderBlock     = regexp.MustCompile(`(?is)###ponder###.*?###/ponder###`)
	thinkingBlock   = regexp.MustCompile(`(?is)<thinking>.*?</thinking>`)
)

// ExtractSQL produces a bare SQL statement from possibly-verbose LLM text,
// trying each recognized shape in priority order before falling back to
// treating the whole (thinking-stripped) input as SQL.
func ExtractSQL(raw string) string {
	stripped := stripThinking(raw)

	if sql, ok := extractFromJSON(stripped); ok {
		return finishExtraction(sql)
	}
	if m := fencedSQLBlock.FindStringSubmatch(stripped); m != nil {
		return finishExtraction(m[1])
	}
	for _, re := range []*regexp.Regexp{sqlGeneratedTag, sqlQueryTag, sqlCodeTag} {
		if m := re.FindStringSubmatch(stripped); m != nil {
			return finishExtraction(m[1])
		}
	}
	return finishExtraction(stripped)
}

// stripThinking discards ###ponder###...###/ponder### and
// <thinking>...</thinking> blocks wholesale, before any other extraction
// attempt runs.
func stripThinking(s string) string {
	s = ponderBlock.ReplaceAllString(s, "")
	s = thinkingBlock.ReplaceAllString(s, "")
	return s
}

// extractFromJSON looks for a top-level or embedded JSON object carrying a
// "sql_query" key.
func extractFromJSON(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	candidate := trimmed[start : end+1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return "", false
	}
	v, ok := payload["sql_query"]
	if !ok {
		return "", false
	}
	sql, ok := v.(string)
	if !ok {
		return "", false
	}
	return sql, true
}

// finishExtraction trims whitespace and strips any trailing semicolon stack
// beyond the first, leaving at most one terminator for the sanitizer to
// remove entirely.
func finishExtraction(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";;") {
		s = strings.TrimSuffix(s, ";")
	}
	return s
}
