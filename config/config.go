// Copyright 2025 QueryGate
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service configuration from a YAML file with
// environment variable overrides. Environment always wins so deployed
// instances can be tuned without editing files.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"querygate/platform/llm"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig       `yaml:"server"`
	Database DatabaseConfig     `yaml:"database"`
	Redis    RedisConfig        `yaml:"redis"`
	LLM      llm.ProviderConfig `yaml:"llm"`
	Sandbox  SandboxConfig      `yaml:"sandbox"`
	Audit    AuditConfig        `yaml:"audit"`
	Archive  ArchiveConfig      `yaml:"archive"`
	Secrets  SecretsConfig      `yaml:"secrets"`
	// Entities maps entity names to their backing table in the main
	// database, e.g. User: users. Only mapped entities are dispatchable.
	Entities map[string]string `yaml:"entities"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig is the PostgreSQL connection.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig is the shared usage-counter backend. Optional; without it
// the rate limiter counts store records.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SandboxConfig tunes the validation pipeline defaults.
type SandboxConfig struct {
	DefaultMode  string `yaml:"default_mode"`
	UseTemplates bool   `yaml:"use_templates"`
}

// AuditConfig sizes the audit trail.
type AuditConfig struct {
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
}

// ArchiveConfig selects an optional long-term audit archive backend.
// Provider is one of "s3", "gcs", "azblob", or empty for none.
type ArchiveConfig struct {
	Provider  string `yaml:"provider"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	AccountID string `yaml:"account_id"`
}

// SecretsConfig points startup at managed secrets instead of inline
// values. Provider is "aws" or empty for none. DatabaseURL and
// LLMAPIKey name the secrets holding those values.
type SecretsConfig struct {
	Provider    string `yaml:"provider"`
	Region      string `yaml:"region"`
	DatabaseURL string `yaml:"database_url"`
	LLMAPIKey   string `yaml:"llm_api_key"`
}

// Load reads the YAML file at path (when non-empty), then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.JWTSecret, "JWT_SECRET")
	setString(&c.Database.URL, "DATABASE_URL")
	setInt(&c.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString((*string)(&c.LLM.Type), "LLM_PROVIDER")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.Region, "AWS_REGION")
	setString(&c.Sandbox.DefaultMode, "SANDBOX_MODE")
	setString(&c.Archive.Provider, "ARCHIVE_PROVIDER")
	setString(&c.Archive.Bucket, "ARCHIVE_BUCKET")
	setString(&c.Archive.Region, "ARCHIVE_REGION")
	setString(&c.Secrets.Provider, "SECRETS_PROVIDER")
	setString(&c.Secrets.DatabaseURL, "DATABASE_URL_SECRET")
	setString(&c.Secrets.LLMAPIKey, "LLM_API_KEY_SECRET")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8090"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.LLM.Type == "" {
		c.LLM.Type = "anthropic"
	}
	if c.LLM.Name == "" {
		c.LLM.Name = "default"
	}
	if c.Sandbox.DefaultMode == "" {
		c.Sandbox.DefaultMode = "strict"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret (or JWT_SECRET) is required")
	}
	switch c.Archive.Provider {
	case "", "s3", "gcs", "azblob":
	default:
		return fmt.Errorf("unknown archive provider %q", c.Archive.Provider)
	}
	if c.Archive.Provider != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.provider is set")
	}
	switch c.Secrets.Provider {
	case "", "aws":
	default:
		return fmt.Errorf("unknown secrets provider %q", c.Secrets.Provider)
	}
	return nil
}

// ResolveSecrets fills configuration values referenced by secret name.
// Inline values already present win over managed secrets.
func (c *Config) ResolveSecrets(ctx context.Context, sm SecretsManager) error {
	if c.Database.URL == "" && c.Secrets.DatabaseURL != "" {
		value, err := secretField(ctx, sm, c.Secrets.DatabaseURL, "url")
		if err != nil {
			return fmt.Errorf("resolve database url: %w", err)
		}
		c.Database.URL = value
	}
	if c.LLM.APIKey == "" && c.Secrets.LLMAPIKey != "" {
		value, err := secretField(ctx, sm, c.Secrets.LLMAPIKey, "api_key")
		if err != nil {
			return fmt.Errorf("resolve llm api key: %w", err)
		}
		c.LLM.APIKey = value
	}
	return nil
}

// secretField prefers the named field, then the plain-string "value"
// payload.
func secretField(ctx context.Context, sm SecretsManager, name, field string) (string, error) {
	payload, err := sm.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	if v := payload[field]; v != "" {
		return v, nil
	}
	if v := payload["value"]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s has no %s field", maskSecretName(name), field)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
