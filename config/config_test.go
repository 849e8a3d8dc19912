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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9000"
  jwt_secret: topsecret
database:
  url: postgres://localhost/querygate
llm:
  type: bedrock
  model: anthropic.claude-3-5-haiku-20241022-v1:0
  region: eu-west-1
sandbox:
  default_mode: permissive
  use_templates: true
audit:
  max_payload_bytes: 8192
  slow_threshold: 1s
entities:
  User: users
  Order: orders
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/querygate", cfg.Database.URL)
	assert.Equal(t, "bedrock", string(cfg.LLM.Type))
	assert.Equal(t, "eu-west-1", cfg.LLM.Region)
	assert.Equal(t, "permissive", cfg.Sandbox.DefaultMode)
	assert.True(t, cfg.Sandbox.UseTemplates)
	assert.Equal(t, 8192, cfg.Audit.MaxPayloadBytes)
	assert.Equal(t, time.Second, cfg.Audit.SlowThreshold)
	assert.Equal(t, "users", cfg.Entities["User"])
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "anthropic", string(cfg.LLM.Type))
	assert.Equal(t, "strict", cfg.Sandbox.DefaultMode)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9000"
database:
  url: postgres://file/db
`)
	t.Setenv("PORT", "9100")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("SANDBOX_MODE", "permissive")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "permissive", cfg.Sandbox.DefaultMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestResolveSecrets(t *testing.T) {
	secrets := StaticSecrets{
		"prod/querygate/db":  {"url": "postgres://secret/db"},
		"prod/querygate/llm": {"value": "sk-ant-secret"},
	}

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Secrets.DatabaseURL = "prod/querygate/db"
	cfg.Secrets.LLMAPIKey = "prod/querygate/llm"

	require.NoError(t, cfg.ResolveSecrets(context.Background(), secrets))
	assert.Equal(t, "postgres://secret/db", cfg.Database.URL)
	assert.Equal(t, "sk-ant-secret", cfg.LLM.APIKey)

	// Inline values win over secret references.
	cfg.Database.URL = "postgres://inline/db"
	require.NoError(t, cfg.ResolveSecrets(context.Background(), secrets))
	assert.Equal(t, "postgres://inline/db", cfg.Database.URL)

	cfg.Database.URL = ""
	cfg.Secrets.DatabaseURL = "missing"
	assert.Error(t, cfg.ResolveSecrets(context.Background(), secrets))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Database.URL = "postgres://localhost/querygate"
		cfg.Server.JWTSecret = "topsecret"
		return cfg
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Archive.Provider = "ftp"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Secrets.Provider = "vault"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Archive.Provider = "s3"
	assert.Error(t, cfg.Validate(), "archive provider without bucket")
	cfg.Archive.Bucket = "querygate-audit"
	assert.NoError(t, cfg.Validate())
}
