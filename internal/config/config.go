// Package config loads the orchestrator daemon's configuration from
// environment variables (§6 EXTERNAL INTERFACES env var list), the only
// configuration surface cmd/orchestratord exposes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/flowforge/orchestrator/internal/apierr"
)

// Config is the orchestrator daemon's process-wide configuration.
type Config struct {
	HTTPAddr string

	InternalServiceToken string

	DatabaseURL string

	Temporal TemporalConfig
	Minio    MinioConfig

	ToolRegistryRedisURL string

	Loki LokiConfig
	Log  LogConfig

	SecretStoreMasterKey string

	Auth AuthConfig

	// ComponentsDir is the directory cmd/orchestratord loads Component
	// Registry definitions from at startup, re-scanning for newly added
	// files as they appear (§4.1).
	ComponentsDir string

	// EngineBackend selects the engine.Engine implementation: "temporal"
	// for the durable production backend (§5), or "inmem" for local
	// development and tests without a Temporal cluster.
	EngineBackend string
}

// TemporalConfig configures the engine's Temporal client.
type TemporalConfig struct {
	Address   string
	TaskQueue string
	Namespace string
}

// MinioConfig configures the object store used for large component
// payloads (container stdout/stderr archives, agent transcripts).
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LokiConfig configures structured log shipping.
type LokiConfig struct {
	URL      string
	AuthUser string
	AuthPass string
}

// LogConfig configures the Kafka log sink used alongside Loki.
type LogConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// AuthConfig configures the pluggable operator-session authentication
// provider (§6, third auth path alongside internal-token and bearer).
type AuthConfig struct {
	Provider           string
	AdminUsername      string
	AdminPassword      string
	ClerkSecretKey     string
	ClerkPublishableKey string
}

// Default returns a Config populated with the daemon's baseline defaults,
// before environment overrides are applied.
func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Temporal: TemporalConfig{
			Address:   "127.0.0.1:7233",
			TaskQueue: "orchestrator",
			Namespace: "default",
		},
		Auth:          AuthConfig{Provider: "basic"},
		ComponentsDir: "./components",
		EngineBackend: "inmem",
	}
}

// Load builds a Config from defaults overlaid with environment variables,
// then validates it.
func Load() (*Config, error) {
	cfg := Default()
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("INTERNAL_SERVICE_TOKEN"); v != "" {
		c.InternalServiceToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("TEMPORAL_ADDRESS"); v != "" {
		c.Temporal.Address = v
	}
	if v := os.Getenv("TEMPORAL_TASK_QUEUE"); v != "" {
		c.Temporal.TaskQueue = v
	}
	if v := os.Getenv("TEMPORAL_NAMESPACE"); v != "" {
		c.Temporal.Namespace = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		c.Minio.Bucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Minio.UseSSL = b
		}
	}
	if v := os.Getenv("TOOL_REGISTRY_REDIS_URL"); v != "" {
		c.ToolRegistryRedisURL = v
	}
	if v := os.Getenv("LOKI_URL"); v != "" {
		c.Loki.URL = v
	}
	if v := os.Getenv("LOKI_AUTH_USER"); v != "" {
		c.Loki.AuthUser = v
	}
	if v := os.Getenv("LOKI_AUTH_PASS"); v != "" {
		c.Loki.AuthPass = v
	}
	if v := os.Getenv("LOG_KAFKA_BROKERS"); v != "" {
		c.Log.KafkaBrokers = splitCSV(v)
	}
	if v := os.Getenv("LOG_KAFKA_TOPIC"); v != "" {
		c.Log.KafkaTopic = v
	}
	if v := os.Getenv("SECRET_STORE_MASTER_KEY"); v != "" {
		c.SecretStoreMasterKey = v
	}
	if v := os.Getenv("AUTH_PROVIDER"); v != "" {
		c.Auth.Provider = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		c.Auth.AdminUsername = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.Auth.AdminPassword = v
	}
	if v := os.Getenv("CLERK_SECRET_KEY"); v != "" {
		c.Auth.ClerkSecretKey = v
	}
	if v := os.Getenv("CLERK_PUBLISHABLE_KEY"); v != "" {
		c.Auth.ClerkPublishableKey = v
	}
	if v := os.Getenv("COMPONENTS_DIR"); v != "" {
		c.ComponentsDir = v
	}
	if v := os.Getenv("ENGINE_BACKEND"); v != "" {
		c.EngineBackend = v
	}
}

// Validate reports configuration errors that would otherwise surface as
// confusing runtime failures once the daemon starts accepting traffic.
func (c *Config) Validate() error {
	if c.InternalServiceToken == "" {
		return apierr.New(apierr.KindConfiguration, "INTERNAL_SERVICE_TOKEN is required")
	}
	if len(c.SecretStoreMasterKey) > 0 && len(c.SecretStoreMasterKey) != 32 {
		return apierr.New(apierr.KindConfiguration, "SECRET_STORE_MASTER_KEY must be exactly 32 bytes (AES-256)")
	}
	switch c.Auth.Provider {
	case "basic", "clerk", "":
	default:
		return apierr.New(apierr.KindConfiguration, "unsupported AUTH_PROVIDER %q", c.Auth.Provider)
	}
	if c.Auth.Provider == "basic" && (c.Auth.AdminUsername == "" || c.Auth.AdminPassword == "") {
		return apierr.New(apierr.KindConfiguration, "AUTH_PROVIDER=basic requires ADMIN_USERNAME and ADMIN_PASSWORD")
	}
	if c.Auth.Provider == "clerk" && c.Auth.ClerkSecretKey == "" {
		return apierr.New(apierr.KindConfiguration, "AUTH_PROVIDER=clerk requires CLERK_SECRET_KEY")
	}
	switch c.EngineBackend {
	case "temporal", "inmem":
	default:
		return apierr.New(apierr.KindConfiguration, "unsupported ENGINE_BACKEND %q", c.EngineBackend)
	}
	return nil
}

// SessionTokenTTL is the lifetime minted MCP session tokens carry (§4.10).
// Not environment-configurable; a fixed operational constant.
const SessionTokenTTL = 1 * time.Hour

func splitCSV(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// String renders a redacted summary of the configuration suitable for
// startup logs: secrets are never printed.
func (c *Config) String() string {
	return fmt.Sprintf(
		"httpAddr=%s engine=%s temporal=%s/%s/%s minio=%s authProvider=%s componentsDir=%s",
		c.HTTPAddr, c.EngineBackend, c.Temporal.Address, c.Temporal.Namespace, c.Temporal.TaskQueue, c.Minio.Endpoint, c.Auth.Provider, c.ComponentsDir,
	)
}
