package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID  string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location   string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	BaseURL    string `yaml:"providerBaseURL" envconfig:"PROVIDER_BASE_URL"`
	Dim        int    `yaml:"providerDim" envconfig:"EMBED_DIM"`

	QueryPrompt    string  `yaml:"queryPrompt" split_words:"true"`
	MaxQueryLength int     `yaml:"maxQueryLength" split_words:"true"`
	TopK           int     `yaml:"topK" split_words:"true"`
	Threshold      float64 `yaml:"threshold"`

	ProjectsFile   string `yaml:"projectsFile" split_words:"true"`
	ChunksFile     string `yaml:"chunksFile" split_words:"true"`
	EmbeddingsFile string `yaml:"embeddingsFile" split_words:"true"`
	AuditLog       string `yaml:"auditLog" split_words:"true"`
	Database       string `yaml:"database" envconfig:"DB_URL"`

	LogLevel       string            `yaml:"logLevel" split_words:"true"`
	Port           int               `yaml:"port" split_words:"true"`
	AllowedOrigins []string          `yaml:"allowedOrigins" split_words:"true"`
	TrustedProxies []string          `yaml:"trustedProxies" split_words:"true"`
	Auth           AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" split_words:"true"`
}

const envPrefix = "PROJECTSEARCH"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < .env/env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// .env never overrides variables already present in the environment
	if err := loadDotEnv(); err != nil {
		return Specification{}, fmt.Errorf("load .env: %w", err)
	}

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/projectsearch.yaml",
				"config/config.yaml",
				"./projectsearch.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate checks the settings the ranking pipeline depends on.
func (s *Specification) Validate() error {
	if s.TopK < 1 {
		return fmt.Errorf("topK must be at least 1, got %d", s.TopK)
	}
	if s.Threshold < -1 || s.Threshold > 1 {
		return fmt.Errorf("threshold must be within [-1, 1], got %g", s.Threshold)
	}
	if s.MaxQueryLength < 1 {
		return fmt.Errorf("maxQueryLength must be positive, got %d", s.MaxQueryLength)
	}
	if s.Dim < 0 {
		return fmt.Errorf("embedding dimension cannot be negative, got %d", s.Dim)
	}
	for _, f := range []struct{ name, value string }{
		{"PROJECTS_FILE", s.ProjectsFile},
		{"CHUNKS_FILE", s.ChunksFile},
		{"EMBEDDINGS_FILE", s.EmbeddingsFile},
		{"AUDIT_LOG", s.AuditLog},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s_%s is required (env/file/flag)", envPrefix, f.name)
		}
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port out of range: %d", s.Port)
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.JwtSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required when auth is enabled", envPrefix)
	}
	return nil
}

// ---------- helpers ----------

func loadDotEnv() error {
	path := os.Getenv(envPrefix + "_ENV_FILE")
	if path == "" {
		if !fileExists(".env") {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub, openai, vertexai, ollama)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.String("provider-base-url", c.BaseURL, "Provider base URL (openai-compatible or ollama server)")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("query-prompt", c.QueryPrompt, "Prefix prepended to every query before embedding")
	fs.Int("max-query-length", c.MaxQueryLength, "Maximum query length in characters")
	fs.Int("top-k", c.TopK, "Number of chunks kept before thresholding")
	fs.Float64("threshold", c.Threshold, "Minimum chunk similarity (exclusive)")

	fs.String("projects-file", c.ProjectsFile, "Path to the projects JSON file")
	fs.String("chunks-file", c.ChunksFile, "Path to the chunks JSON file")
	fs.String("embeddings-file", c.EmbeddingsFile, "Path to the chunk embedding matrix (.npy or .json)")
	fs.String("audit-log", c.AuditLog, "Path to the CSV audit log")
	fs.String("db-url", c.Database, "Optional database URL (DSN) for the audit mirror")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")
	fs.StringSlice("allowed-origins", c.AllowedOrigins, "CORS allowed origins")
	fs.StringSlice("trusted-proxies", c.TrustedProxies, "Proxy addresses whose forwarding headers are trusted (* for any)")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on search")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setSlice := func(name string, dst *[]string) {
		if fs.Changed(name) {
			v, _ := fs.GetStringSlice(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setStr("provider-base-url", &c.BaseURL)
	setInt("embed-dim", &c.Dim)

	setStr("query-prompt", &c.QueryPrompt)
	setInt("max-query-length", &c.MaxQueryLength)
	setInt("top-k", &c.TopK)
	setFloat("threshold", &c.Threshold)

	setStr("projects-file", &c.ProjectsFile)
	setStr("chunks-file", &c.ChunksFile)
	setStr("embeddings-file", &c.EmbeddingsFile)
	setStr("audit-log", &c.AuditLog)
	setStr("db-url", &c.Database)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
	setSlice("allowed-origins", &c.AllowedOrigins)
	setSlice("trusted-proxies", &c.TrustedProxies)

	// Auth flags
	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Provider = "ollama"
	c.Dim = 384
	c.QueryPrompt = "Demande du client : "
	c.MaxQueryLength = 2000
	c.TopK = 5
	c.Threshold = 0.4
	c.ProjectsFile = "data/projects.json"
	c.ChunksFile = "data/chunks.json"
	c.EmbeddingsFile = "data/embedded_chunks.npy"
	c.AuditLog = "data/logs.csv"
	c.Database = ""
	c.Port = 8080
	c.AllowedOrigins = []string{"http://localhost:1313", "https://opetit.fr", "https://www.opetit.fr"}
	c.TrustedProxies = []string{"*"}
	c.Auth.Enabled = false
}
