package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/orchestra-run/queryweave/pkg/llm"
)

// OrchestratorConfig holds every environment-sourced setting the query
// orchestrator reads at startup. Unlike the server-level Config, this is
// entirely env-sourced, with no config.yaml overlay, since the orchestrator
// is deployed as a single-tenant process.
type OrchestratorConfig struct {
	DisableDatabases bool   `env:"DISABLE_DATABASES" env-default:"false"`
	DatabaseURL      string `env:"DATABASE_URL" env-default:""`

	UseSecurityLLM                    bool `env:"USE_SECURITY_LLM" env-default:"false"`
	TerminateOnPotentiallyHarmfulSQL bool `env:"TERMINATE_ON_POTENTIALLY_HARMFUL_SQL" env-default:"true"`

	MCPRegistryURL string `env:"MCP_REGISTRY_URL" env-default:""`

	RAG RAGConfig `env-prefix:"RAG_"`

	// Databases holds every additional DB_<NAME>_* configured database,
	// keyed by <NAME> lowercased. Populated by scanning the environment,
	// since cleanenv's static struct tags can't express an open-ended set
	// of names.
	Databases map[string]DatabaseEndpoint `env:"-"`

	// Roles holds one RoleConfig per llm.Role, populated by scanning
	// <ROLE>_LLM_* for every role in llm.AllRoles.
	Roles map[llm.Role]llm.RoleConfig `env:"-"`
}

// RAGConfig mirrors the RAG_* environment variables.
type RAGConfig struct {
	Enabled             bool    `env:"ENABLED" env-default:"false"`
	EmbeddingModel      string  `env:"EMBEDDING_MODEL" env-default:""`
	EmbeddingProvider   string  `env:"EMBEDDING_PROVIDER" env-default:"openai"`
	EmbeddingEndpoint   string  `env:"EMBEDDING_ENDPOINT" env-default:""`
	EmbeddingAPIKey     string  `env:"EMBEDDING_API_KEY" env-default:""`
	ChromaURL           string  `env:"CHROMA_URL" env-default:"http://localhost:8000"`
	VectorStoreType     string  `env:"VECTOR_STORE_TYPE" env-default:"chroma"`
	TopKResults         int     `env:"TOP_K_RESULTS" env-default:"5"`
	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" env-default:"0.7"`
	ChunkSize           int     `env:"CHUNK_SIZE" env-default:"1000"`
	ChunkOverlap        int     `env:"CHUNK_OVERLAP" env-default:"200"`
	ChromaPersistDir    string  `env:"CHROMA_PERSIST_DIR" env-default:"./chroma"`
	CollectionName      string  `env:"COLLECTION_NAME" env-default:"documents"`
	SupportedFileTypes  string  `env:"SUPPORTED_FILE_TYPES" env-default:".pdf,.txt,.md,.docx"`
}

// DatabaseEndpoint is one DB_<NAME>_* configured database.
type DatabaseEndpoint struct {
	Name     string
	Type     string // postgresql | mysql | sqlite | oracle | mssql
	URL      string // set when DB_<NAME>_URL was used directly
	Username string
	Password string
	Hostname string
	Port     int
	DBName   string // target database name on the server, from DB_<NAME>_NAME
}

// supportedDatabaseTypes is the enumerated DB_<NAME>_TYPE option set.
var supportedDatabaseTypes = map[string]bool{
	"postgresql": true, "mysql": true, "sqlite": true, "oracle": true, "mssql": true,
}

// LoadOrchestrator reads OrchestratorConfig from the environment: cleanenv
// handles every statically-named field, and two post-processing passes over
// os.Environ() fill in the open-ended DB_<NAME>_* and <ROLE>_LLM_* families.
func LoadOrchestrator() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read orchestrator config: %w", err)
	}

	cfg.Databases = discoverDatabases(os.Environ())
	roles, err := discoverRoles(os.Environ())
	if err != nil {
		return nil, err
	}
	cfg.Roles = roles

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// discoverDatabases scans environ for DB_<NAME>_URL and DB_<NAME>_{TYPE,
// USERNAME,PASSWORD,HOSTNAME,PORT,NAME} families.
func discoverDatabases(environ []string) map[string]DatabaseEndpoint {
	endpoints := make(map[string]DatabaseEndpoint)
	for _, kv := range environ {
		key, _, ok := splitEnv(kv)
		if !ok || !strings.HasPrefix(key, "DB_") {
			continue
		}
		rest := strings.TrimPrefix(key, "DB_")
		idx := lastFieldIndex(rest)
		if idx < 0 {
			continue
		}
		name := strings.ToLower(rest[:idx])
		if name == "" {
			continue
		}
		ep := endpoints[name]
		ep.Name = name
		applyDatabaseField(&ep, rest[idx+1:], lookupEnv(environ, key))
		endpoints[name] = ep
	}
	return endpoints
}

func applyDatabaseField(ep *DatabaseEndpoint, field, value string) {
	switch field {
	case "URL":
		ep.URL = value
	case "TYPE":
		ep.Type = strings.ToLower(value)
	case "USERNAME":
		ep.Username = value
	case "PASSWORD":
		ep.Password = value
	case "HOSTNAME":
		ep.Hostname = value
	case "PORT":
		if p, err := strconv.Atoi(value); err == nil {
			ep.Port = p
		}
	case "NAME":
		ep.DBName = value
	}
}

// lastFieldIndex finds the separator before the trailing field name
// (URL|TYPE|USERNAME|PASSWORD|HOSTNAME|PORT|NAME) in a DB_<NAME>_<FIELD>
// key's remainder.
func lastFieldIndex(rest string) int {
	for _, field := range []string{"URL", "TYPE", "USERNAME", "PASSWORD", "HOSTNAME", "PORT", "NAME"} {
		suffix := "_" + field
		if strings.HasSuffix(rest, suffix) {
			return len(rest) - len(suffix)
		}
	}
	return -1
}

// discoverRoles scans environ for <ROLE>_LLM_{PROVIDER,MODEL,HOSTNAME,PORT,
// API_PATH,API_KEY} for every role in llm.AllRoles.
func discoverRoles(environ []string) (map[llm.Role]llm.RoleConfig, error) {
	roles := make(map[llm.Role]llm.RoleConfig, len(llm.AllRoles))
	for _, role := range llm.AllRoles {
		prefix := string(role) + "_LLM_"
		cfg := llm.RoleConfig{
			Provider: lookupEnv(environ, prefix+"PROVIDER"),
			Model:    lookupEnv(environ, prefix+"MODEL"),
			Hostname: lookupEnv(environ, prefix+"HOSTNAME"),
			APIPath:  lookupEnv(environ, prefix+"API_PATH"),
			APIKey:   lookupEnv(environ, prefix+"API_KEY"),
		}
		if portStr := lookupEnv(environ, prefix+"PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("%sPORT: invalid port %q", prefix, portStr)
			}
			cfg.Port = port
		}
		if cfg.Provider != "" && !llm.SupportedProviders[cfg.Provider] {
			return nil, fmt.Errorf("%sPROVIDER: unsupported provider %q", prefix, cfg.Provider)
		}
		roles[role] = cfg
	}
	return roles, nil
}

func splitEnv(kv string) (key, value string, ok bool) {
	i := strings.IndexByte(kv, '=')
	if i < 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func lookupEnv(environ []string, key string) string {
	prefix := key + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

// Validate aggregates every configuration violation into one error instead
// of failing on the first, per the supplemented config-validation feature.
func (c *OrchestratorConfig) Validate() error {
	var problems []string

	if _, hasDefault := c.Roles[llm.RoleDefault]; !hasDefault || c.Roles[llm.RoleDefault].Model == "" {
		problems = append(problems, "DEFAULT_LLM_MODEL is required")
	}
	if !c.DisableDatabases && c.DatabaseURL == "" && len(c.Databases) == 0 {
		problems = append(problems, "at least one of DATABASE_URL or DB_<NAME>_* must be set unless DISABLE_DATABASES=true")
	}
	for name, ep := range c.Databases {
		if ep.URL != "" {
			continue
		}
		if ep.Type == "" {
			problems = append(problems, fmt.Sprintf("DB_%s_TYPE is required", strings.ToUpper(name)))
			continue
		}
		if !supportedDatabaseTypes[ep.Type] {
			problems = append(problems, fmt.Sprintf("DB_%s_TYPE: unsupported type %q", strings.ToUpper(name), ep.Type))
		}
		if ep.Hostname == "" {
			problems = append(problems, fmt.Sprintf("DB_%s_HOSTNAME is required when DB_%s_URL is not set", strings.ToUpper(name), strings.ToUpper(name)))
		}
	}
	if c.RAG.Enabled && c.RAG.EmbeddingModel == "" {
		problems = append(problems, "RAG_EMBEDDING_MODEL is required when RAG_ENABLED=true")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
