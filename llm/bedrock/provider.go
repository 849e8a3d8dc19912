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

// Package bedrock implements the llm.Provider interface for AWS Bedrock
// using the AWS SDK v2. Authentication uses AWS Signature V4 via the
// ambient IAM credential chain, so no API key is stored in config.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"querygate/platform/llm"
)

const (
	// DefaultRegion when none is configured.
	DefaultRegion = "us-east-1"

	// DefaultModel when none is configured.
	DefaultModel = "anthropic.claude-3-5-haiku-20241022-v1:0"

	// DefaultMaxTokens when the request does not specify one.
	DefaultMaxTokens = 1024
)

// InvokeClient is the subset of the Bedrock runtime client used by the
// provider. This allows injecting a mock client in tests.
type InvokeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider implements llm.Provider for AWS Bedrock.
type Provider struct {
	name   string
	client InvokeClient
	region string
	model  string
}

// New creates a Bedrock provider. Loading the AWS config fails fast when
// no credentials are available; callers should surface the error rather
// than falling back silently.
func New(ctx context.Context, name, region, model string) (*Provider, error) {
	if region == "" {
		region = DefaultRegion
	}
	if model == "" {
		model = DefaultModel
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config for region %s: %w", region, err)
	}

	return &Provider{
		name:   name,
		client: bedrockruntime.NewFromConfig(awsCfg),
		region: region,
		model:  model,
	}, nil
}

// NewWithClient creates a provider with an injected client. Used in tests.
func NewWithClient(name, region, model string, client InvokeClient) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{name: name, client: client, region: region, model: model}
}

// Name returns the provider instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeBedrock
}

// Complete invokes the configured Bedrock model.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := buildRequestBody(model, req, maxTokens)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeInvalidRequest,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeInvalidRequest,
			Message:  "failed to marshal request",
			Cause:    err,
		}
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		code := llm.ErrCodeUnavailable
		if ctx.Err() != nil {
			code = llm.ErrCodeTimeout
		}
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     code,
			Message:  "invoke failed",
			Cause:    err,
		}
	}

	resp, err := parseResponseBody(output.Body, model)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: p.name,
			Code:     llm.ErrCodeServerError,
			Message:  "failed to parse response",
			Cause:    err,
		}
	}

	resp.Model = model
	resp.Latency = time.Since(start)
	return resp, nil
}

// HealthCheck invokes the model with a minimal prompt.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	start := time.Now()

	_, err := p.Complete(ctx, &llm.CompletionRequest{Prompt: "ping", MaxTokens: 1})

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

// modelFamily extracts the vendor prefix from a Bedrock model ID, e.g.
// "anthropic" from "anthropic.claude-3-5-haiku-20241022-v1:0".
func modelFamily(model string) string {
	if idx := strings.Index(model, "."); idx > 0 {
		return model[:idx]
	}
	return ""
}

// buildRequestBody builds the InvokeModel payload for the model family.
func buildRequestBody(model string, req *llm.CompletionRequest, maxTokens int) (map[string]interface{}, error) {
	switch family := modelFamily(model); family {
	case "anthropic":
		body := map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			body["system"] = req.SystemPrompt
		}
		if len(req.StopSequences) > 0 {
			body["stop_sequences"] = req.StopSequences
		}
		return body, nil
	case "amazon":
		return map[string]interface{}{
			"inputText": req.Prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
			},
		}, nil
	case "meta":
		return map[string]interface{}{
			"prompt":      req.Prompt,
			"max_gen_len": maxTokens,
			"temperature": req.Temperature,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model family: %q", family)
	}
}

// parseResponseBody decodes the InvokeModel response for the model family.
func parseResponseBody(body []byte, model string) (*llm.CompletionResponse, error) {
	switch family := modelFamily(model); family {
	case "anthropic":
		var resp struct {
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
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		var content string
		for _, block := range resp.Content {
			if block.Type == "text" {
				content += block.Text
			}
		}
		return &llm.CompletionResponse{
			Content: content,
			Usage: llm.UsageStats{
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
				TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
			FinishReason: resp.StopReason,
		}, nil
	case "amazon":
		var resp struct {
			Results []struct {
				OutputText       string `json:"outputText"`
				CompletionReason string `json:"completionReason"`
			} `json:"results"`
			InputTextTokenCount int `json:"inputTextTokenCount"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Results) == 0 {
			return nil, fmt.Errorf("empty results")
		}
		return &llm.CompletionResponse{
			Content:      resp.Results[0].OutputText,
			FinishReason: resp.Results[0].CompletionReason,
			Usage:        llm.UsageStats{PromptTokens: resp.InputTextTokenCount},
		}, nil
	case "meta":
		var resp struct {
			Generation           string `json:"generation"`
			StopReason           string `json:"stop_reason"`
			PromptTokenCount     int    `json:"prompt_token_count"`
			GenerationTokenCount int    `json:"generation_token_count"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{
			Content:      resp.Generation,
			FinishReason: resp.StopReason,
			Usage: llm.UsageStats{
				PromptTokens:     resp.PromptTokenCount,
				CompletionTokens: resp.GenerationTokenCount,
				TotalTokens:      resp.PromptTokenCount + resp.GenerationTokenCount,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model family: %q", modelFamily(model))
	}
}
