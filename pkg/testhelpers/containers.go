package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/database"
)

// TestImage is the PostgreSQL image used for integration tests.
const TestImage = "postgres:16-alpine"

// fixtureDDL creates the subject-database schema integration tests run
// against: a handful of small tables mirroring the shapes the SQL nodes see
// in production (users/orders with an FK, contacts for refine/widen flows,
// events for plain scans).
const fixtureDDL = `
CREATE TABLE users (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE
);
COMMENT ON COLUMN users.email IS 'login identifier';

CREATE TABLE accounts (
	id SERIAL PRIMARY KEY,
	user_id INT REFERENCES users(id),
	balance NUMERIC(12,2) DEFAULT 0
);

CREATE TABLE orders (
	id SERIAL PRIMARY KEY,
	user_id INT NOT NULL REFERENCES users(id),
	total NUMERIC(12,2),
	created_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE events (
	id SERIAL PRIMARY KEY,
	kind TEXT,
	payload JSONB,
	occurred_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE contacts (
	id SERIAL PRIMARY KEY,
	name TEXT,
	phone TEXT,
	country TEXT
);

CREATE TABLE t (
	c TEXT
);

INSERT INTO users (name, email) VALUES
	('Ada', 'ada@example.com'),
	('Grace', 'grace@example.com'),
	('Linus', 'linus@example.com');

INSERT INTO accounts (user_id, balance) VALUES (1, 10.00), (2, 250.50);

INSERT INTO orders (user_id, total) VALUES (1, 99.95), (1, 12.00), (3, 7.25);

INSERT INTO events (kind, payload) VALUES
	('signup', '{"plan":"free"}'),
	('signup', '{"plan":"pro"}'),
	('login', NULL),
	('login', NULL),
	('churn', '{"reason":"price"}');

INSERT INTO contacts (name, phone, country) VALUES
	('Ivan', '+7 900 000-00-01', 'Lemuria'),
	('Maria', '+7 900 000-00-02', 'Lemuria'),
	('Chen', '+86 10 0000 0003', 'Mu');

INSERT INTO t (c) VALUES ('x');
`

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once, seeded with the fixture schema, and reused
// across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        TestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "test_data",
			"POSTGRES_USER":     "queryweave",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://queryweave:test_password@%s:%s/test_data?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, fixtureDDL); err != nil {
		return nil, fmt.Errorf("failed to seed fixture schema: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// MetadataDB holds the orchestrator metadata database connection with
// migrations applied. Use this for testing the audit and conversation
// stores against a real database.
type MetadataDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedMetadataDB     *MetadataDB
	sharedMetadataDBOnce sync.Once
	sharedMetadataDBErr  error
)

// GetMetadataDB returns a shared metadata database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetMetadataDB(t *testing.T) *MetadataDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedMetadataDBOnce.Do(func() {
		sharedMetadataDB, sharedMetadataDBErr = setupMetadataDB(testDB)
	})

	if sharedMetadataDBErr != nil {
		t.Fatalf("Failed to setup metadata database: %v", sharedMetadataDBErr)
	}

	return sharedMetadataDB
}

func setupMetadataDB(testDB *TestDB) (*MetadataDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE queryweave_test"); err != nil {
		return nil, fmt.Errorf("failed to create metadata database: %w", err)
	}

	host, err := testDB.Container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := testDB.Container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://queryweave:test_password@%s:%s/queryweave_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &MetadataDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}
