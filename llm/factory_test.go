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

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string       { return s.name }
func (s *stubProvider) Type() ProviderType { return ProviderTypeCustom }
func (s *stubProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}
func (s *stubProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	return &HealthCheckResult{Status: HealthStatusHealthy}, nil
}

func TestFactoryRegistration(t *testing.T) {
	RegisterFactory(ProviderTypeCustom, func(cfg ProviderConfig) (Provider, error) {
		return &stubProvider{name: cfg.Name}, nil
	})

	assert.True(t, HasFactory(ProviderTypeCustom))

	p, err := NewProvider(ProviderConfig{Name: "stub", Type: ProviderTypeCustom})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Type: ProviderType("nope")})
	assert.Error(t, err)
}

func TestProviderErrorFormatting(t *testing.T) {
	err := &ProviderError{Provider: "anthropic", Code: ErrCodeRateLimit, Message: "slow down", StatusCode: 429}
	assert.Equal(t, "anthropic error (status 429): slow down", err.Error())

	err = NewProviderError("bedrock", ErrCodeUnavailable, "down")
	assert.Equal(t, "bedrock error: down", err.Error())
}
