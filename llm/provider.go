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
)

// Provider defines the interface that all LLM providers must implement.
// The translator only needs single-shot completions; streaming is out of
// scope for query generation.
type Provider interface {
	// Name returns the unique name of this provider instance.
	Name() string

	// Type returns the provider type (anthropic, bedrock, etc.).
	Type() ProviderType

	// Complete generates a completion for the given request.
	// Returns ProviderError for provider-specific failures.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is accessible and functioning.
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}

// ProviderConfig contains configuration for creating a provider.
type ProviderConfig struct {
	// Name is a unique identifier for this provider instance.
	Name string `yaml:"name" json:"name"`

	// Type specifies which provider implementation to use.
	Type ProviderType `yaml:"type" json:"type"`

	// APIKey for authentication (not used by bedrock, which relies on
	// the ambient AWS credential chain).
	APIKey string `yaml:"api_key" json:"-"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`

	// Model is the default model for this provider.
	Model string `yaml:"model" json:"model,omitempty"`

	// Region is the AWS region (bedrock only).
	Region string `yaml:"region" json:"region,omitempty"`

	// TimeoutSeconds for API requests. 0 means provider default.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}
