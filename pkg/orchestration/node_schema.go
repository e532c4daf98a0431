package orchestration

import (
	"context"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/state"
)

// GetSchema fetches schema_dump and table_to_db_mapping from
// every configured database. Per-database failures are logged and swallowed
// so a single unreachable database never blocks the rest.
func (d *Deps) GetSchema(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.QueryType == "" {
		s.QueryType = state.QueryInitial
	}

	if s.DisableDatabases || d.DB == nil {
		s.SchemaDump = map[string]state.TableSchema{}
		s.TableToDBMapping = map[string]string{}
		return s, nil
	}

	schemaDump := make(map[string]state.TableSchema)
	tableToDB := make(map[string]string)

	for _, db := range d.DB.Databases() {
		tables, err := d.DB.GetSchema(ctx, db)
		if err != nil {
			d.log().Warn("schema fetch failed for database", zap.String("database", db), zap.Error(err))
			continue
		}
		for table, schema := range tables {
			schemaDump[table] = schema
			tableToDB[table] = db
		}
	}

	s.SchemaDump = schemaDump
	s.TableToDBMapping = tableToDB
	return s, nil
}
