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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"querygate/platform/shared/logger"
)

// SecretsManager resolves named secrets, e.g. database passwords and
// provider API keys referenced by ARN instead of stored in config files.
type SecretsManager interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// secretsAPI is the slice of the AWS client the manager uses.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager fetches secrets from AWS Secrets Manager with a
// short-lived in-process cache.
type AWSSecretsManager struct {
	client secretsAPI
	ttl    time.Duration
	log    *logger.Logger

	mu    sync.RWMutex
	cache map[string]secretEntry
}

type secretEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// NewAWSSecretsManager creates a manager using the ambient AWS
// credential chain.
func NewAWSSecretsManager(ctx context.Context, region string, ttl time.Duration) (*AWSSecretsManager, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		ttl:    ttl,
		log:    logger.New("secrets"),
		cache:  make(map[string]secretEntry),
	}, nil
}

// GetSecret returns the secret's key-value payload. JSON secrets decode
// into their fields; plain-string secrets come back under "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	s.mu.RLock()
	entry, ok := s.cache[name]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", maskSecretName(name), err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretName(name))
	}

	var value map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &value); err != nil {
		value = map[string]string{"value": *out.SecretString}
	}

	s.mu.Lock()
	s.cache[name] = secretEntry{value: value, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Debug("", "", "Secret fetched", map[string]interface{}{
		"secret": maskSecretName(name),
	})
	return value, nil
}

// StaticSecrets serves secrets from a fixed map. Tests and local
// development.
type StaticSecrets map[string]map[string]string

// GetSecret implements SecretsManager.
func (s StaticSecrets) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	value, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("secret %s not found", name)
	}
	return value, nil
}

// maskSecretName keeps only a recognizable tail for log lines.
func maskSecretName(name string) string {
	if len(name) <= 12 {
		return name
	}
	return "..." + name[len(name)-12:]
}
