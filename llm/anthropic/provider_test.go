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

package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/llm"
)

// mockHTTPClient records the last request and returns a canned response.
type mockHTTPClient struct {
	lastRequest *http.Request
	lastBody    []byte
	response    *http.Response
	err         error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastRequest = req
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("test", Config{})
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New("test", Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, p.config.BaseURL)
	assert.Equal(t, DefaultAPIVersion, p.config.APIVersion)
	assert.Equal(t, DefaultModel, p.config.Model)
	assert.Equal(t, llm.ProviderTypeAnthropic, p.Type())
}

func TestCompleteSuccess(t *testing.T) {
	p, err := New("test", Config{APIKey: "sk-test"})
	require.NoError(t, err)

	mock := &mockHTTPClient{
		response: jsonResponse(200, `{
			"id": "msg_01",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "{\"targetEntity\":\"User\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 18}
		}`),
	}
	p.SetHTTPClient(mock)

	resp, err := p.Complete(context.Background(), &llm.CompletionRequest{
		Prompt:       "Find all active users",
		SystemPrompt: "You translate prompts into JSON queries.",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"targetEntity":"User"}`, resp.Content)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 138, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.True(t, p.IsHealthy())

	// Verify headers and payload.
	assert.Equal(t, "sk-test", mock.lastRequest.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAPIVersion, mock.lastRequest.Header.Get("anthropic-version"))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(mock.lastBody, &sent))
	assert.Equal(t, "You translate prompts into JSON queries.", sent["system"])
}

func TestCompleteAPIError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantHealth bool
	}{
		{
			name:       "rate limit",
			status:     429,
			body:       `{"error": {"type": "rate_limit_error", "message": "rate limited"}}`,
			wantCode:   llm.ErrCodeRateLimit,
			wantHealth: true,
		},
		{
			name:       "auth failure",
			status:     401,
			body:       `{"error": {"type": "authentication_error", "message": "invalid key"}}`,
			wantCode:   llm.ErrCodeAuth,
			wantHealth: true,
		},
		{
			name:       "server error marks unhealthy",
			status:     500,
			body:       `{"error": {"type": "api_error", "message": "overloaded"}}`,
			wantCode:   llm.ErrCodeServerError,
			wantHealth: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New("test", Config{APIKey: "sk-test"})
			require.NoError(t, err)
			p.SetHTTPClient(&mockHTTPClient{response: jsonResponse(tt.status, tt.body)})

			_, err = p.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
			require.Error(t, err)

			var provErr *llm.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.wantHealth, p.IsHealthy())
		})
	}
}

func TestCompleteNetworkError(t *testing.T) {
	p, err := New("test", Config{APIKey: "sk-test"})
	require.NoError(t, err)
	p.SetHTTPClient(&mockHTTPClient{err: errors.New("connection refused")})

	_, err = p.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var provErr *llm.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, llm.ErrCodeUnavailable, provErr.Code)
	assert.False(t, p.IsHealthy())
}

func TestCompleteContextCancelled(t *testing.T) {
	p, err := New("test", Config{APIKey: "sk-test"})
	require.NoError(t, err)
	p.SetHTTPClient(&mockHTTPClient{err: context.Canceled})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Complete(ctx, &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var provErr *llm.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, llm.ErrCodeTimeout, provErr.Code)
}
