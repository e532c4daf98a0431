package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/audit"
	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/sqlsafety"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// GenerateSQL asks the SQL-role LLM for a candidate statement, avoiding
// repeats of earlier attempts.
func (d *Deps) GenerateSQL(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.DisableDatabases {
		return s, nil
	}

	client := d.LLMs.Get(llm.RoleSQL)
	result, err := client.GenerateResponse(ctx, buildGenerateSQLPrompt(s), "You write precise, read-only SQL.", 0.0, false)
	if err != nil {
		s.SQLGenerationError = err.Error()
		s.RetryCount++
		return s, nil
	}

	extracted := sqlsafety.Sanitize(sqlsafety.ExtractSQL(result.Content))
	if extracted == "" {
		s.SQLGenerationError = "no SQL could be extracted from the model response"
		s.RetryCount++
		s.RecordSQLAttempt(result.Content, "generation", "initial")
		return s, nil
	}

	s.SQLGenerationError = ""
	s.AppendSQLCandidate(extracted)
	s.RecordSQLAttempt(extracted, "", "initial")
	return s, nil
}

// ValidateSQL applies the keyword/pattern/injection screen and the schema
// existence check; disable_sql_blocking bypasses only the former, never the
// table/column existence validation.
func (d *Deps) ValidateSQL(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.SQLQuery == "" {
		s.ValidationError = "no SQL candidate to validate"
		s.RetryCount++
		return s, nil
	}

	if !s.DisableSQLBlocking {
		securityLLMDecided := false
		if d.UseSecurityLLM && d.LLMs != nil {
			safe, reason, err := d.callSecurityLLM(ctx, s.SQLQuery)
			if err != nil {
				d.log().Warn("security LLM failed, falling back to keyword screen", zap.Error(err))
			} else {
				securityLLMDecided = true
				if !safe {
					s.ValidationError = reason
					s.RetryCount++
					return s, nil
				}
			}
		}

		if !securityLLMDecided {
			verdict := sqlsafety.Screen(s.SQLQuery)
			if !verdict.Safe {
				s.ValidationError = verdict.Reason
				s.RetryCount++
				s.RecordSQLAttempt(s.SQLQuery, "validation", string(s.QueryType))
				if d.Auditor != nil {
					if verdict.Kind == sqlsafety.KindInjection {
						d.Auditor.LogInjectionAttempt(ctx, s.UserRequest, audit.SQLInjectionDetails{Query: s.SQLQuery, Fingerprint: verdict.Reason})
					} else {
						d.Auditor.LogHarmfulSQLBlocked(ctx, s.UserRequest, audit.BlockedSQLDetails{Query: s.SQLQuery, Reason: verdict.Reason})
					}
				}
				return s, nil
			}
		}
	}

	if len(s.SchemaDump) > 0 {
		if err := sqlsafety.ValidateAgainstSchema(s.SQLQuery, s.SchemaDump); err != nil {
			s.ValidationError = err.Error()
			s.RetryCount++
			s.RecordSQLAttempt(s.SQLQuery, "schema", string(s.QueryType))
			if d.Auditor != nil {
				d.Auditor.LogSchemaValidationFailure(ctx, s.UserRequest, err.Error())
			}
			return s, nil
		}
	}

	s.ValidationError = ""
	return s, nil
}

// callSecurityLLM asks the security-role LLM to classify a SQL statement as
// safe or unsafe. Its own failure is signaled via the returned error so the
// caller can fall through to the keyword screen instead of failing closed.
func (d *Deps) callSecurityLLM(ctx context.Context, sqlQuery string) (safe bool, reason string, err error) {
	client := d.LLMs.Get(llm.RoleSecurity)
	prompt := fmt.Sprintf("Is the following SQL statement safe to execute against a production database? Answer with either \"SAFE\" or \"UNSAFE: <reason>\".\n\n%s", sqlQuery)
	result, err := client.GenerateResponse(ctx, prompt, "You are a SQL security reviewer.", 0.0, false)
	if err != nil {
		return false, "", err
	}
	verdict := strings.TrimSpace(result.Content)
	if strings.HasPrefix(strings.ToUpper(verdict), "SAFE") {
		return true, "", nil
	}
	return false, strings.TrimPrefix(verdict, "UNSAFE: "), nil
}

// ExecuteSQL runs the candidate against every database owning one of its
// tables, tagging each row with its source database.
func (d *Deps) ExecuteSQL(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.DisableDatabases || s.SQLQuery == "" {
		return s, nil
	}

	databases := databasesForQuery(s.SQLQuery, s.TableToDBMapping)
	if len(databases) == 0 {
		if d.DB != nil {
			dbs := d.DB.Databases()
			if len(dbs) == 1 {
				databases = dbs
			}
		}
	}
	if len(databases) == 0 {
		s.ExecutionError = "no database could be resolved for the query's tables"
		return s, nil
	}

	if len(databases) == 1 {
		rows, err := d.DB.Execute(ctx, databases[0], s.SQLQuery)
		if err != nil {
			s.ExecutionError = err.Error()
			s.RecordSQLAttempt(s.SQLQuery, "execution", string(s.QueryType))
			return s, nil
		}
		s.AddDBRows(databases[0], rows)
		if d.Auditor != nil {
			d.Auditor.LogQueryExecution(ctx, s.UserRequest, databases[0], s.SQLQuery)
		}
		return s, nil
	}

	// Cross-database: execute once per database; a failure on one database
	// drops its rows but never fails the whole execution.
	type outcome struct {
		db   string
		rows []map[string]any
		err  error
	}
	outcomes := make([]outcome, len(databases))
	var wg sync.WaitGroup
	for i, db := range databases {
		wg.Add(1)
		go func(i int, db string) {
			defer wg.Done()
			rows, err := d.DB.Execute(ctx, db, s.SQLQuery)
			outcomes[i] = outcome{db: db, rows: rows, err: err}
		}(i, db)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			d.log().Warn("cross-database execution failed for one database", zap.String("database", o.db), zap.Error(o.err))
			continue
		}
		s.AddDBRows(o.db, o.rows)
	}
	return s, nil
}

// databasesForQuery returns the distinct set of databases that own any table
// referenced by sqlQuery, per tableToDB.
func databasesForQuery(sqlQuery string, tableToDB map[string]string) []string {
	refs := sqlsafety.ParseTableReferences(sqlQuery)
	seen := make(map[string]bool)
	var dbs []string
	for _, ref := range refs {
		db, ok := tableToDB[strings.ToLower(ref.Table)]
		if !ok {
			continue
		}
		if !seen[db] {
			seen[db] = true
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// RefineSQL feeds the failed candidate and its error back to the SQL LLM
// for a corrected statement, consuming the error slot.
func (d *Deps) RefineSQL(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	_, errText := s.ActiveError()
	failedSQL := s.SQLQuery

	client := d.LLMs.Get(llm.RoleSQL)
	result, err := client.GenerateResponse(ctx, buildRefineSQLPrompt(s, failedSQL, errText), "You write precise, read-only SQL.", 0.0, false)
	if err != nil {
		s.ExecutionError = err.Error()
		return s, nil
	}

	extracted := sqlsafety.Sanitize(sqlsafety.ExtractSQL(result.Content))
	s.ClearErrors()
	if extracted != "" {
		s.AppendSQLCandidate(extracted)
		s.RecordSQLAttempt(extracted, "", "refine")
	}
	return s, nil
}

// GenerateWiderSearchQuery asks the prompt LLM for broadening strategies
// after a zero-row initial result, then has the SQL LLM realize them.
func (d *Deps) GenerateWiderSearchQuery(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	promptClient := d.LLMs.Get(llm.RolePrompt)
	strategyResult, err := promptClient.GenerateResponse(ctx, buildWideningStrategyPrompt(s), "You suggest ways to broaden an overly narrow database query.", 0.3, false)
	if err != nil {
		s.ExecutionError = err.Error()
		return s, nil
	}

	sqlClient := d.LLMs.Get(llm.RoleSQL)
	sqlResult, err := sqlClient.GenerateResponse(ctx, buildWidenedSQLPrompt(s, strategyResult.Content), "You write precise, read-only SQL.", 0.0, false)
	if err != nil {
		s.ExecutionError = err.Error()
		return s, nil
	}

	extracted := sqlsafety.Sanitize(sqlsafety.ExtractSQL(sqlResult.Content))
	s.QueryType = state.QueryWiderSearch
	s.WidenRetryCount++
	if extracted != "" {
		s.AppendSQLCandidate(extracted)
		s.RecordSQLAttempt(extracted, "", "widen")
	}
	return s, nil
}
