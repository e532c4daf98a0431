package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setOrchestratorEnv sets the minimum orchestrator environment Load needs to
// succeed, so server-level tests don't fail on engine validation.
func setOrchestratorEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEFAULT_LLM_MODEL", "test-model")
	t.Setenv("DEFAULT_LLM_HOSTNAME", "localhost")
	t.Setenv("DEFAULT_LLM_PORT", "8000")
	t.Setenv("DISABLE_DATABASES", "true")
}

// setupConfigTest creates config.yaml in a temp directory and changes to it.
// If dir is empty, creates a new temp directory. Returns the directory path.
// Cleanup is registered automatically.
func setupConfigTest(t *testing.T, yamlContent string, dir ...string) string {
	t.Helper()
	var tmpDir string
	if len(dir) > 0 && dir[0] != "" {
		tmpDir = dir[0]
	} else {
		tmpDir = t.TempDir()
	}
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	return tmpDir
}

// tlsTestFiles holds paths to TLS test files created by setupTLSFiles.
type tlsTestFiles struct {
	CertPath string
	KeyPath  string
}

// setupTLSFiles creates dummy cert and/or key files in the given directory.
func setupTLSFiles(t *testing.T, dir string, createCert, createKey bool) tlsTestFiles {
	t.Helper()
	files := tlsTestFiles{
		CertPath: filepath.Join(dir, "test-cert.pem"),
		KeyPath:  filepath.Join(dir, "test-key.pem"),
	}

	if createCert {
		if err := os.WriteFile(files.CertPath, []byte("fake-cert-content"), 0644); err != nil {
			t.Fatalf("failed to write test cert: %v", err)
		}
	}
	if createKey {
		if err := os.WriteFile(files.KeyPath, []byte("fake-key-content"), 0644); err != nil {
			t.Fatalf("failed to write test key: %v", err)
		}
	}

	return files
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
`)

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}

	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443 (auto-derived from PORT), got %s", cfg.BaseURL)
	}

	// YAML value used for database host proves YAML was read
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
}

func TestLoad_BaseURLAutoDerive(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "5678"
env: "test"
`)

	os.Unsetenv("BASE_URL")
	os.Unsetenv("PORT")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "http://localhost:5678" {
		t.Errorf("expected BaseURL=http://localhost:5678 (auto-derived), got %s", cfg.BaseURL)
	}
}

func TestLoad_BaseURLExplicit(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
base_url: "http://my-server.internal:8080"
`)

	os.Unsetenv("BASE_URL")
	os.Unsetenv("PORT")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "http://my-server.internal:8080" {
		t.Errorf("expected BaseURL=http://my-server.internal:8080 (explicit), got %s", cfg.BaseURL)
	}
}

func TestLoad_BaseURLAutoDeriveTLS(t *testing.T) {
	setOrchestratorEnv(t)
	tmpDir := t.TempDir()
	tls := setupTLSFiles(t, tmpDir, true, true)

	setupConfigTest(t, fmt.Sprintf(`
port: "8443"
env: "test"
tls_cert_path: "%s"
tls_key_path: "%s"
`, tls.CertPath, tls.KeyPath), tmpDir)

	os.Unsetenv("BASE_URL")
	os.Unsetenv("PORT")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "https://localhost:8443" {
		t.Errorf("expected BaseURL=https://localhost:8443 (auto-derived with TLS), got %s", cfg.BaseURL)
	}
}

func TestLoad_EnvOnlyWhenConfigMissing(t *testing.T) {
	setOrchestratorEnv(t)
	tmpDir := t.TempDir()
	originalDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	t.Cleanup(func() { os.Chdir(originalDir) })

	t.Setenv("PORT", "7777")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() should fall back to env-only when config.yaml is missing, got: %v", err)
	}
	if cfg.Port != "7777" {
		t.Errorf("expected Port=7777 (from env), got %s", cfg.Port)
	}
}

func TestLoad_JWKSEndpointsParsed(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
`)
	t.Setenv("JWKS_ENDPOINTS", "https://issuer-a=https://issuer-a/jwks.json, https://issuer-b=https://issuer-b/jwks.json")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if got := cfg.Auth.JWKSEndpoints["https://issuer-a"]; got != "https://issuer-a/jwks.json" {
		t.Errorf("issuer-a JWKS URL not parsed, got %q", got)
	}
	if got := cfg.Auth.JWKSEndpoints["https://issuer-b"]; got != "https://issuer-b/jwks.json" {
		t.Errorf("issuer-b JWKS URL not parsed, got %q", got)
	}
}

func TestLoad_OrchestratorEmbedded(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
`)
	t.Setenv("MCP_REGISTRY_URL", "http://registry:8500")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Orchestrator == nil {
		t.Fatal("expected embedded OrchestratorConfig")
	}
	if !cfg.Orchestrator.DisableDatabases {
		t.Error("expected DisableDatabases=true from env")
	}
	if cfg.Orchestrator.MCPRegistryURL != "http://registry:8500" {
		t.Errorf("expected MCPRegistryURL from env, got %q", cfg.Orchestrator.MCPRegistryURL)
	}
}

func TestLoad_DatasourceConfigDefaults(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
`)

	os.Unsetenv("DATASOURCE_CONNECTION_TTL_MINUTES")
	os.Unsetenv("DATASOURCE_POOL_MAX_CONNS")
	os.Unsetenv("DATASOURCE_POOL_MIN_CONNS")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Datasource.ConnectionTTLMinutes != 5 {
		t.Errorf("expected ConnectionTTLMinutes=5 (default), got %d", cfg.Datasource.ConnectionTTLMinutes)
	}
	if cfg.Datasource.PoolMaxConns != 10 {
		t.Errorf("expected PoolMaxConns=10 (default), got %d", cfg.Datasource.PoolMaxConns)
	}
	if cfg.Datasource.PoolMinConns != 1 {
		t.Errorf("expected PoolMinConns=1 (default), got %d", cfg.Datasource.PoolMinConns)
	}
}

func TestLoad_DatasourceConfigFromEnv(t *testing.T) {
	setOrchestratorEnv(t)
	setupConfigTest(t, `
port: "3443"
env: "test"
datasource:
  connection_ttl_minutes: 5
  pool_max_conns: 10
  pool_min_conns: 1
`)

	t.Setenv("DATASOURCE_CONNECTION_TTL_MINUTES", "15")
	t.Setenv("DATASOURCE_POOL_MAX_CONNS", "20")
	t.Setenv("DATASOURCE_POOL_MIN_CONNS", "3")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Datasource.ConnectionTTLMinutes != 15 {
		t.Errorf("expected ConnectionTTLMinutes=15 (from env), got %d", cfg.Datasource.ConnectionTTLMinutes)
	}
	if cfg.Datasource.PoolMaxConns != 20 {
		t.Errorf("expected PoolMaxConns=20 (from env), got %d", cfg.Datasource.PoolMaxConns)
	}
	if cfg.Datasource.PoolMinConns != 3 {
		t.Errorf("expected PoolMinConns=3 (from env), got %d", cfg.Datasource.PoolMinConns)
	}
}

// TLS configuration tests

func TestValidateTLS_OnlyCertProvided(t *testing.T) {
	setOrchestratorEnv(t)
	tmpDir := t.TempDir()
	tls := setupTLSFiles(t, tmpDir, true, false) // cert only

	setupConfigTest(t, fmt.Sprintf(`
port: "3443"
env: "test"
tls_cert_path: "%s"
`, tls.CertPath), tmpDir)

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error when only cert provided, got nil")
	}

	if !strings.Contains(err.Error(), "both") {
		t.Errorf("expected error to mention 'both', got: %v", err)
	}
}

func TestValidateTLS_CertFileNotFound(t *testing.T) {
	setOrchestratorEnv(t)
	tmpDir := t.TempDir()
	tls := setupTLSFiles(t, tmpDir, false, true) // key only, cert missing
	nonexistentCert := filepath.Join(tmpDir, "nonexistent-cert.pem")

	setupConfigTest(t, fmt.Sprintf(`
port: "3443"
env: "test"
tls_cert_path: "%s"
tls_key_path: "%s"
`, nonexistentCert, tls.KeyPath), tmpDir)

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error when cert file not found, got nil")
	}

	if !strings.Contains(err.Error(), "cert file does not exist") {
		t.Errorf("expected error to mention 'cert file does not exist', got: %v", err)
	}
}

func TestValidateTLS_TLSFromEnv(t *testing.T) {
	setOrchestratorEnv(t)
	tmpDir := t.TempDir()
	tls := setupTLSFiles(t, tmpDir, true, true)

	setupConfigTest(t, `
port: "3443"
env: "test"
`, tmpDir)

	t.Setenv("TLS_CERT_PATH", tls.CertPath)
	t.Setenv("TLS_KEY_PATH", tls.KeyPath)

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TLSCertPath != tls.CertPath {
		t.Errorf("expected TLSCertPath=%s (from env), got %s", tls.CertPath, cfg.TLSCertPath)
	}
	if cfg.TLSKeyPath != tls.KeyPath {
		t.Errorf("expected TLSKeyPath=%s (from env), got %s", tls.KeyPath, cfg.TLSKeyPath)
	}
}
