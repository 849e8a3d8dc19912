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

package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"querygate/platform/llm"
	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

const (
	// DefaultTimeout bounds the single provider call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTokens for the generative fallback. Query JSON is small.
	DefaultMaxTokens = 512
)

// Options controls translation for one prompt.
type Options struct {
	// UseTemplates enables the template-match strategy before the
	// generative fallback.
	UseTemplates bool

	// Templates are the caller's pre-vetted, grant-filtered templates.
	Templates []types.QueryTemplate

	// Model overrides the provider's default model.
	Model string
}

// Result is a successful translation.
type Result struct {
	Query *types.StructuredQuery

	// MatchedTemplate is set when the template strategy produced the
	// query; nil for generative output.
	MatchedTemplate *types.QueryTemplate
}

// Translator converts prompts into candidate structured queries.
type Translator struct {
	provider llm.Provider
	log      *logger.Logger
	timeout  time.Duration
}

// New creates a Translator. The provider may be nil, in which case only
// the template strategy is available.
func New(provider llm.Provider) *Translator {
	return &Translator{
		provider: provider,
		log:      logger.New("translator"),
		timeout:  DefaultTimeout,
	}
}

// SetTimeout overrides the provider call timeout.
func (t *Translator) SetTimeout(d time.Duration) {
	t.timeout = d
}

// Translate produces a candidate structured query for the prompt, trying
// template matching first when enabled, then the generative fallback.
// Failures of either strategy surface as *types.TranslationError.
func (t *Translator) Translate(ctx context.Context, agentID, prompt string, schemaMaps []types.SchemaMap, opts Options) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, types.NewTranslationError(prompt, "empty prompt", nil)
	}
	if len(schemaMaps) == 0 {
		return nil, types.NewTranslationError(prompt, "no schema maps available", nil)
	}

	if opts.UseTemplates {
		for i := range opts.Templates {
			query, err := matchTemplate(prompt, opts.Templates[i])
			if err != nil {
				t.log.Warn(agentID, "", "Template rendering failed", map[string]interface{}{
					"template_id": opts.Templates[i].ID,
					"error":       err.Error(),
				})
				continue
			}
			if query != nil {
				t.log.Info(agentID, "", "Prompt matched template", map[string]interface{}{
					"template_id": opts.Templates[i].ID,
					"entity":      query.TargetEntity,
					"action":      string(query.Action),
				})
				return &Result{Query: query, MatchedTemplate: &opts.Templates[i]}, nil
			}
		}
	}

	return t.generate(ctx, agentID, prompt, schemaMaps, opts)
}

// generate asks the completion provider for a strict JSON query object.
// One attempt only; malformed output is a hard failure, never retried.
func (t *Translator) generate(ctx context.Context, agentID, prompt string, schemaMaps []types.SchemaMap, opts Options) (*Result, error) {
	if t.provider == nil {
		return nil, types.NewTranslationError(prompt, "no completion provider configured and no template matched", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.provider.Complete(ctx, &llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: buildSystemPrompt(schemaMaps),
		MaxTokens:    DefaultMaxTokens,
		Temperature:  0,
		Model:        opts.Model,
	})
	if err != nil {
		return nil, types.NewTranslationError(prompt, "completion provider failed", err)
	}

	query, err := parseCompletion(resp.Content, schemaMaps)
	if err != nil {
		t.log.Warn(agentID, "", "Rejected completion output", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, types.NewTranslationError(prompt, err.Error(), err)
	}

	t.log.InfoWithDuration(agentID, "", "Prompt translated", float64(resp.Latency.Milliseconds()), map[string]interface{}{
		"entity":       query.TargetEntity,
		"action":       string(query.Action),
		"total_tokens": resp.Usage.TotalTokens,
	})
	return &Result{Query: query}, nil
}

// buildSystemPrompt serializes the schema maps into the system instruction
// so the model can only reference whitelisted entities, actions, and fields.
func buildSystemPrompt(schemaMaps []types.SchemaMap) string {
	var b strings.Builder
	b.WriteString("You translate natural-language requests into database queries.\n")
	b.WriteString("Respond with exactly one JSON object and nothing else, shaped as:\n")
	b.WriteString(`{"targetModel": "<entity>", "action": "<action>", "params": {...}}` + "\n")
	b.WriteString("Filter conditions go under params.where, selected fields under params.select, result limits under params.take.\n")
	b.WriteString("You may only use the entities, actions, and fields below:\n\n")

	for _, sm := range schemaMaps {
		entities := make([]string, 0, len(sm.EntitySpecs))
		for name := range sm.EntitySpecs {
			entities = append(entities, name)
		}
		sort.Strings(entities)

		for _, name := range entities {
			spec := sm.EntitySpecs[name]
			b.WriteString("Entity " + name + ":\n")

			actions := make([]string, 0, len(spec.AllowedActions))
			for _, a := range spec.AllowedActions {
				actions = append(actions, string(a))
			}
			sort.Strings(actions)
			b.WriteString("  actions: " + strings.Join(actions, ", ") + "\n")

			fields := append([]string(nil), spec.AllowedFields...)
			sort.Strings(fields)
			for _, f := range fields {
				line := "  field " + f
				if t, ok := spec.FieldTypes[f]; ok {
					line += " (" + string(t) + ")"
				}
				b.WriteString(line + "\n")
			}
			if len(spec.RequiredFields) > 0 {
				b.WriteString("  required: " + strings.Join(spec.RequiredFields, ", ") + "\n")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("If the request cannot be expressed with these entities and actions, respond with {\"error\": \"unsupported\"}.")
	return b.String()
}

// completionQuery is the JSON shape requested from the provider.
type completionQuery struct {
	TargetModel string                 `json:"targetModel"`
	Action      string                 `json:"action"`
	Params      map[string]interface{} `json:"params"`
	Error       string                 `json:"error"`
}

// parseCompletion extracts and checks the provider's JSON output against
// the supplied schema maps. Anything outside the whitelist is rejected.
func parseCompletion(content string, schemaMaps []types.SchemaMap) (*types.StructuredQuery, error) {
	raw, err := extractFirstJSONObject(content)
	if err != nil {
		return nil, err
	}

	var cq completionQuery
	if err := json.Unmarshal([]byte(raw), &cq); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if cq.Error != "" {
		return nil, fmt.Errorf("provider could not express the request: %s", cq.Error)
	}
	if cq.TargetModel == "" || cq.Action == "" {
		return nil, fmt.Errorf("response missing targetModel or action")
	}

	action := types.Action(cq.Action)
	for _, sm := range schemaMaps {
		spec, ok := sm.Entity(cq.TargetModel)
		if !ok {
			continue
		}
		if !spec.ActionAllowed(action) {
			continue
		}
		return &types.StructuredQuery{
			TargetEntity: cq.TargetModel,
			Action:       action,
			Params:       cq.Params,
			QueryText:    raw,
		}, nil
	}

	return nil, fmt.Errorf("entity %q with action %q is not in the allowed schema", cq.TargetModel, cq.Action)
}
