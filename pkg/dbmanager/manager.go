// Package dbmanager implements orchestration.DatabaseManager against the
// configured DB_<NAME>_* endpoints, on top of the datasource adapter
// registry: one SchemaDiscoverer and one QueryExecutor per configured
// database, pooled by the shared ConnectionManager, with a TTL schema cache
// refreshed single-flight per database.
package dbmanager

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/orchestra-run/queryweave/pkg/adapters/datasource"
	"github.com/orchestra-run/queryweave/pkg/apperrors"
	"github.com/orchestra-run/queryweave/pkg/config"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// schemaCacheTTL bounds how long a database's schema is trusted before the
// next GetSchema call re-queries the catalog.
const schemaCacheTTL = 5 * time.Minute

type cachedSchema struct {
	tables    map[string]state.TableSchema
	fetchedAt time.Time
}

// adapterTypeFor maps the configured DB_<NAME>_TYPE values onto the adapter
// registry's type keys. Types accepted by config validation but with no
// compiled-in adapter return "".
func adapterTypeFor(configured string) string {
	switch configured {
	case "", "postgresql", "postgres":
		return "postgres"
	case "mssql":
		return "mssql"
	default:
		return ""
	}
}

// Manager owns one adapter pair per configured database and satisfies
// orchestration.DatabaseManager. PostgreSQL and SQL Server are wired end to
// end; the remaining supported types are accepted by config validation but
// Execute/GetSchema return a clear unsupported-type error instead of
// silently no-op'ing, matching the "never invoke a driver we don't have"
// posture of disable_databases.
type Manager struct {
	logger  *zap.Logger
	factory datasource.DatasourceAdapterFactory
	connMgr *datasource.ConnectionManager

	config map[string]config.DatabaseEndpoint

	schemaMu sync.Mutex
	schemas  map[string]cachedSchema
	flight   singleflight.Group
}

// New builds a Manager from the configured database endpoints. Adapters are
// created lazily on first use, not eagerly here, so a misconfigured database
// that is never queried never blocks startup.
func New(endpoints map[string]config.DatabaseEndpoint, ds config.DatasourceConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfgCopy := make(map[string]config.DatabaseEndpoint, len(endpoints))
	for name, ep := range endpoints {
		cfgCopy[name] = ep
	}
	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   ds.ConnectionTTLMinutes,
		PoolMaxConns: ds.PoolMaxConns,
		PoolMinConns: ds.PoolMinConns,
	}, logger.Named("connmgr"))
	return &Manager{
		logger:  logger,
		factory: datasource.NewDatasourceAdapterFactory(connMgr),
		connMgr: connMgr,
		config:  cfgCopy,
		schemas: make(map[string]cachedSchema),
	}
}

// Databases lists the configured database names in sorted order.
func (m *Manager) Databases() []string {
	names := make([]string, 0, len(m.config))
	for name := range m.config {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// endpointConfigMap converts a DatabaseEndpoint into the generic config map
// the adapter registry's FromMap functions consume. A DB_<NAME>_URL value is
// decomposed into its parts so both adapters see the same shape.
func endpointConfigMap(ep config.DatabaseEndpoint) (map[string]any, error) {
	if ep.URL != "" {
		u, err := url.Parse(ep.URL)
		if err != nil {
			return nil, fmt.Errorf("parse DB_%s_URL: %w", strings.ToUpper(ep.Name), err)
		}
		cfg := map[string]any{
			"host":     u.Hostname(),
			"database": strings.TrimPrefix(u.Path, "/"),
			"ssl_mode": u.Query().Get("sslmode"),
		}
		if u.User != nil {
			cfg["user"] = u.User.Username()
			if pw, ok := u.User.Password(); ok {
				cfg["password"] = pw
			}
		}
		if p := u.Port(); p != "" {
			if port, err := strconv.Atoi(p); err == nil {
				cfg["port"] = port
			}
		}
		return cfg, nil
	}

	name := ep.DBName
	if name == "" {
		name = ep.Name
	}
	cfg := map[string]any{
		"host":     ep.Hostname,
		"user":     ep.Username,
		"username": ep.Username,
		"password": ep.Password,
		"database": name,
	}
	if ep.Port != 0 {
		cfg["port"] = ep.Port
	}
	return cfg, nil
}

func (m *Manager) endpoint(database string) (config.DatabaseEndpoint, string, error) {
	ep, ok := m.config[database]
	if !ok {
		return config.DatabaseEndpoint{}, "", fmt.Errorf("%w: %q", apperrors.ErrUnknownDatabase, database)
	}
	dsType := adapterTypeFor(ep.Type)
	if dsType == "" {
		return config.DatabaseEndpoint{}, "", fmt.Errorf("%w: database %q has type %q", apperrors.ErrDriverNotWired, database, ep.Type)
	}
	return ep, dsType, nil
}

// GetSchema returns database's table->schema map, refreshing from the live
// catalog when the cached entry is older than schemaCacheTTL. Concurrent
// refreshes for the same database collapse into one catalog walk.
func (m *Manager) GetSchema(ctx context.Context, database string) (map[string]state.TableSchema, error) {
	m.schemaMu.Lock()
	if cached, ok := m.schemas[database]; ok && time.Since(cached.fetchedAt) < schemaCacheTTL {
		m.schemaMu.Unlock()
		return cached.tables, nil
	}
	m.schemaMu.Unlock()

	result, err, _ := m.flight.Do(database, func() (any, error) {
		tables, err := m.discoverSchema(ctx, database)
		if err != nil {
			return nil, err
		}
		m.schemaMu.Lock()
		m.schemas[database] = cachedSchema{tables: tables, fetchedAt: time.Now()}
		m.schemaMu.Unlock()
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]state.TableSchema), nil
}

func (m *Manager) discoverSchema(ctx context.Context, database string) (map[string]state.TableSchema, error) {
	ep, dsType, err := m.endpoint(database)
	if err != nil {
		return nil, err
	}
	cfgMap, err := endpointConfigMap(ep)
	if err != nil {
		return nil, err
	}

	discoverer, err := m.factory.NewSchemaDiscoverer(ctx, dsType, cfgMap, database)
	if err != nil {
		return nil, fmt.Errorf("schema discoverer for %q: %w", database, err)
	}
	defer discoverer.Close()

	tables, err := discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tables for %q: %w", database, err)
	}

	result := make(map[string]state.TableSchema, len(tables))
	for _, t := range tables {
		cols, err := discoverer.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			m.logger.Warn("column discovery failed for table",
				zap.String("database", database),
				zap.String("table", t.TableName),
				zap.Error(err))
			continue
		}
		columns := make([]state.ColumnInfo, 0, len(cols))
		for _, c := range cols {
			columns = append(columns, state.ColumnInfo{
				Name:     c.ColumnName,
				Type:     c.DataType,
				Nullable: c.IsNullable,
				Comment:  c.Comment,
			})
		}
		result[t.TableName] = state.TableSchema{Columns: columns}
	}

	return result, nil
}

// Execute runs query against database and returns each row as a plain map
// keyed by column name.
func (m *Manager) Execute(ctx context.Context, database, query string) ([]map[string]any, error) {
	ep, dsType, err := m.endpoint(database)
	if err != nil {
		return nil, err
	}
	cfgMap, err := endpointConfigMap(ep)
	if err != nil {
		return nil, err
	}

	executor, err := m.factory.NewQueryExecutor(ctx, dsType, cfgMap, database)
	if err != nil {
		return nil, fmt.Errorf("query executor for %q: %w", database, err)
	}
	defer executor.Close()

	result, err := executor.ExecuteQuery(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("execute against %q: %w", database, err)
	}
	return result.Rows, nil
}

// InvalidateSchema drops database's cached schema so the next GetSchema
// re-reads the catalog.
func (m *Manager) InvalidateSchema(database string) {
	m.schemaMu.Lock()
	delete(m.schemas, database)
	m.schemaMu.Unlock()
}

// Close releases every pool the Manager has opened.
func (m *Manager) Close() {
	m.connMgr.Close()
}
