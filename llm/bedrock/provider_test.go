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

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/llm"
)

type mockInvokeClient struct {
	lastInput *bedrockruntime.InvokeModelInput
	output    *bedrockruntime.InvokeModelOutput
	err       error
}

func (m *mockInvokeClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func TestCompleteAnthropicFamily(t *testing.T) {
	mock := &mockInvokeClient{
		output: &bedrockruntime.InvokeModelOutput{
			Body: []byte(`{
				"content": [{"type": "text", "text": "{\"action\":\"findMany\"}"}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 90, "output_tokens": 12}
			}`),
		},
	}
	p := NewWithClient("bedrock", "us-east-1", "", mock)

	resp, err := p.Complete(context.Background(), &llm.CompletionRequest{
		Prompt:       "Count orders placed today",
		SystemPrompt: "Translate to JSON.",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"action":"findMany"}`, resp.Content)
	assert.Equal(t, 102, resp.Usage.TotalTokens)
	assert.Equal(t, DefaultModel, resp.Model)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(mock.lastInput.Body, &sent))
	assert.Equal(t, "bedrock-2023-05-31", sent["anthropic_version"])
	assert.Equal(t, "Translate to JSON.", sent["system"])
}

func TestCompleteMetaFamily(t *testing.T) {
	mock := &mockInvokeClient{
		output: &bedrockruntime.InvokeModelOutput{
			Body: []byte(`{"generation": "hello", "stop_reason": "stop", "prompt_token_count": 5, "generation_token_count": 2}`),
		},
	}
	p := NewWithClient("bedrock", "us-east-1", "meta.llama3-70b-instruct-v1:0", mock)

	resp, err := p.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestCompleteUnsupportedFamily(t *testing.T) {
	p := NewWithClient("bedrock", "us-east-1", "cohere.command-r-v1:0", &mockInvokeClient{})

	_, err := p.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var provErr *llm.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, llm.ErrCodeInvalidRequest, provErr.Code)
}

func TestCompleteInvokeError(t *testing.T) {
	p := NewWithClient("bedrock", "us-east-1", "", &mockInvokeClient{err: errors.New("throttled")})

	_, err := p.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var provErr *llm.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, llm.ErrCodeUnavailable, provErr.Code)
}

func TestModelFamily(t *testing.T) {
	assert.Equal(t, "anthropic", modelFamily("anthropic.claude-3-5-haiku-20241022-v1:0"))
	assert.Equal(t, "amazon", modelFamily("amazon.titan-text-express-v1"))
	assert.Equal(t, "", modelFamily("no-dot-model"))
}
