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

// Package anthropic implements the llm.Provider interface for Anthropic's
// Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"querygate/platform/llm"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the API version header value.
	DefaultAPIVersion = "2023-06-01"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-20241022"

	// DefaultTimeout for completion requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens when the request does not specify one.
	DefaultMaxTokens = 1024
)

// HTTPClient is the interface for making HTTP requests.
// This allows injecting a mock client in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains Anthropic-specific configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	Timeout    time.Duration
}

// Provider implements llm.Provider for Anthropic.
type Provider struct {
	name       string
	config     Config
	httpClient HTTPClient

	mu      sync.RWMutex
	healthy bool
}

// New creates a new Anthropic provider.
func New(name string, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		name:       name,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		healthy:    true,
	}, nil
}

// SetHTTPClient replaces the HTTP client. Used in tests.
func (p *Provider) SetHTTPClient(client HTTPClient) {
	p.httpClient = client
}

// Name returns the provider instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeAnthropic
}

// Complete sends a completion request to the Messages API.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
		System:        req.SystemPrompt,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeInvalidRequest,
			Message:  "failed to marshal request",
			Cause:    err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeInvalidRequest,
			Message:  "failed to build request",
			Cause:    err,
		}
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		if ctx.Err() != nil {
			return nil, &llm.ProviderError{
				Provider: p.name,
				Code:     llm.ErrCodeTimeout,
				Message:  "request cancelled or timed out",
				Cause:    err,
			}
		}
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeUnavailable,
			Message:  "request failed",
			Cause:    err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeServerError,
			Message:  "failed to read response body",
			Cause:    err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		p.setHealthy(resp.StatusCode < 500)
		return nil, p.parseAPIError(resp.StatusCode, respBody)
	}
	p.setHealthy(true)

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeServerError,
			Message:  "failed to decode response",
			Cause:    err,
		}
	}

	var content string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &llm.CompletionResponse{
		Content: content,
		Model:   apiResp.Model,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Latency:      time.Since(start),
		FinishReason: apiResp.StopReason,
	}, nil
}

// HealthCheck sends a minimal completion to verify connectivity.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	start := time.Now()

	_, err := p.Complete(ctx, &llm.CompletionRequest{
		Prompt:    "ping",
		MaxTokens: 1,
	})

	result := &llm.HealthCheckResult{
		Latency:     time.Since(start),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Status = llm.HealthStatusUnhealthy
		result.Message = err.Error()
		return result, err
	}
	result.Status = llm.HealthStatusHealthy
	return result, nil
}

// IsHealthy reports the last observed health state.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	p.healthy = healthy
	p.mu.Unlock()
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", p.config.APIVersion)
}

func (p *Provider) parseAPIError(statusCode int, body []byte) *llm.ProviderError {
	var apiErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	code := llm.ErrCodeServerError
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = llm.ErrCodeAuth
	case http.StatusTooManyRequests:
		code = llm.ErrCodeRateLimit
	case http.StatusBadRequest:
		code = llm.ErrCodeInvalidRequest
	}

	return &llm.ProviderError{
		Provider:   p.name,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// anthropicRequest is the Messages API request payload.
type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	Temperature   float64            `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the Messages API response payload.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
