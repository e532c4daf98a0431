package dbmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-run/queryweave/pkg/config"
)

func TestEndpointConfigMap_DecomposesURL(t *testing.T) {
	ep := config.DatabaseEndpoint{Name: "primary", URL: "postgres://u:p@host:5433/db?sslmode=disable"}
	got, err := endpointConfigMap(ep)
	require.NoError(t, err)
	assert.Equal(t, "host", got["host"])
	assert.Equal(t, 5433, got["port"])
	assert.Equal(t, "u", got["user"])
	assert.Equal(t, "p", got["password"])
	assert.Equal(t, "db", got["database"])
	assert.Equal(t, "disable", got["ssl_mode"])
}

func TestEndpointConfigMap_BuildsFromFields(t *testing.T) {
	ep := config.DatabaseEndpoint{
		Name: "analytics", Hostname: "db.internal", Port: 5432,
		Username: "reader", Password: "secret", DBName: "analytics_prod",
	}
	got, err := endpointConfigMap(ep)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", got["host"])
	assert.Equal(t, "analytics_prod", got["database"])
	assert.Equal(t, "reader", got["user"])
}

func TestEndpointConfigMap_FallsBackToLogicalName(t *testing.T) {
	ep := config.DatabaseEndpoint{Name: "analytics", Hostname: "db.internal", Username: "r", Password: "p"}
	got, err := endpointConfigMap(ep)
	require.NoError(t, err)
	assert.Equal(t, "analytics", got["database"])
}

func TestAdapterTypeFor(t *testing.T) {
	assert.Equal(t, "postgres", adapterTypeFor(""))
	assert.Equal(t, "postgres", adapterTypeFor("postgresql"))
	assert.Equal(t, "mssql", adapterTypeFor("mssql"))
	assert.Equal(t, "", adapterTypeFor("oracle"))
}

func TestDatabases_SortedByName(t *testing.T) {
	m := New(map[string]config.DatabaseEndpoint{
		"warehouse": {Name: "warehouse"},
		"analytics": {Name: "analytics"},
	}, config.DatasourceConfig{}, nil)
	defer m.Close()
	assert.Equal(t, []string{"analytics", "warehouse"}, m.Databases())
}

func TestEndpoint_UnknownDatabase(t *testing.T) {
	m := New(nil, config.DatasourceConfig{}, nil)
	defer m.Close()
	_, _, err := m.endpoint("nope")
	assert.ErrorContains(t, err, "unknown database")
}

func TestEndpoint_UnwiredType(t *testing.T) {
	m := New(map[string]config.DatabaseEndpoint{
		"legacy": {Name: "legacy", Type: "oracle", Hostname: "h"},
	}, config.DatasourceConfig{}, nil)
	defer m.Close()
	_, _, err := m.endpoint("legacy")
	assert.ErrorContains(t, err, "not wired")
}
