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
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/logger"
)

type fakeSecretsAPI struct {
	payload string
	calls   int
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.payload)}, nil
}

func newTestSecretsManager(api secretsAPI) *AWSSecretsManager {
	return &AWSSecretsManager{
		client: api,
		ttl:    time.Minute,
		log:    logger.New("secrets"),
		cache:  make(map[string]secretEntry),
	}
}

func TestGetSecretJSON(t *testing.T) {
	api := &fakeSecretsAPI{payload: `{"username": "qg", "password": "hunter2"}`}
	sm := newTestSecretsManager(api)

	value, err := sm.GetSecret(context.Background(), "arn:aws:secretsmanager:eu-west-1:123:secret:db")
	require.NoError(t, err)
	assert.Equal(t, "qg", value["username"])
	assert.Equal(t, "hunter2", value["password"])
}

func TestGetSecretPlainString(t *testing.T) {
	api := &fakeSecretsAPI{payload: `sk-ant-xyz`}
	sm := newTestSecretsManager(api)

	value, err := sm.GetSecret(context.Background(), "llm-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-xyz", value["value"])
}

func TestGetSecretCaches(t *testing.T) {
	api := &fakeSecretsAPI{payload: `{"value": "v"}`}
	sm := newTestSecretsManager(api)
	ctx := context.Background()

	_, err := sm.GetSecret(ctx, "name")
	require.NoError(t, err)
	_, err = sm.GetSecret(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls, "second read served from cache")
}

func TestStaticSecrets(t *testing.T) {
	s := StaticSecrets{"db": {"password": "x"}}

	value, err := s.GetSecret(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "x", value["password"])

	_, err = s.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMaskSecretName(t *testing.T) {
	assert.Equal(t, "short", maskSecretName("short"))
	assert.Equal(t, "...cret:db-cred", maskSecretName("arn:aws:secretsmanager:eu-west-1:123:secret:db-cred"))
}
