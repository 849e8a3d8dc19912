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

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"querygate/platform/repository"
	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
	"querygate/platform/translator"
)

// SubmitOptions controls one prompt submission.
type SubmitOptions struct {
	// AutoApprove requests immediate execution when the authorizing
	// grant does not require a human decision. Without it the request
	// always waits as PENDING.
	AutoApprove bool `json:"auto_approve"`

	// UseTemplates enables template matching before generative
	// translation.
	UseTemplates bool `json:"use_templates"`

	// Mode selects strict or permissive validation. Empty means strict.
	Mode types.SandboxMode `json:"sandbox_mode,omitempty"`
}

// SubmitResult is the outcome of a prompt submission.
type SubmitResult struct {
	Success          bool                `json:"success"`
	QueryRequestID   string              `json:"query_request_id,omitempty"`
	Status           types.RequestStatus `json:"status,omitempty"`
	RequiresApproval bool                `json:"requires_approval"`
	Warnings         []string            `json:"warnings,omitempty"`
	Errors           []string            `json:"errors,omitempty"`
	Result           *ExecResult         `json:"result,omitempty"`
}

// UsageRecorder mirrors submissions into a shared counter (the Redis
// sliding window). Optional; the store count alone is authoritative for
// single-instance deployments.
type UsageRecorder interface {
	Record(ctx context.Context, agentID, userID string, now time.Time) error
}

// Service is the outbound surface of the sandbox: submitPrompt,
// decideApproval, execute.
type Service struct {
	store      Store
	translator *translator.Translator
	validator  *Validator
	limiter    *RateLimiter
	approvals  *Approvals
	executor   *Executor
	recorder   UsageRecorder
	log        *logger.Logger
}

// NewService wires the full pipeline over the given store, translator,
// repository registry, and audit sink.
func NewService(store Store, tr *translator.Translator, registry *repository.Registry, audit AuditSink, auditCfg AuditConfig) *Service {
	registerMetrics()

	validator := NewValidator(store)
	limiter := NewRateLimiter(store)
	return &Service{
		store:      store,
		translator: tr,
		validator:  validator,
		limiter:    limiter,
		approvals:  NewApprovals(store),
		executor:   NewExecutor(store, validator, limiter, registry, audit, auditCfg),
		log:        logger.New("sandbox"),
	}
}

// SetUsageRecorder attaches a shared usage counter fed on submission.
func (s *Service) SetUsageRecorder(r UsageRecorder) {
	s.recorder = r
}

// RateLimiter exposes the limiter for counter replacement at startup.
func (s *Service) RateLimiter() *RateLimiter {
	return s.limiter
}

// SubmitPrompt turns a natural-language prompt into a validated,
// possibly executed query request. Every failure path persists the
// request so the compliance trail is complete even for denied attempts.
func (s *Service) SubmitPrompt(ctx context.Context, agentID, userID, sessionID, prompt string, opts SubmitOptions) (*SubmitResult, error) {
	if opts.Mode == "" {
		opts.Mode = types.ModeStrict
	}

	req := &types.QueryRequest{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		UserID:      userID,
		SessionID:   sessionID,
		Prompt:      prompt,
		Status:      types.StatusPending,
		SandboxMode: opts.Mode,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	// Rate limit at submission. The request record is still persisted on
	// denial so the compliance trail covers denied attempts too.
	limit, err := s.limiter.Check(ctx, agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !limit.Allowed {
		recordRateLimitDenial()
		req.RejectionReason = limit.Reason
		req.Status = types.StatusRejected
		if err := s.persistNew(ctx, req); err != nil {
			return nil, err
		}
		recordRequest("rate_limited")
		return &SubmitResult{
			QueryRequestID: req.ID,
			Status:         req.Status,
			Errors:         []string{limit.Reason},
		}, nil
	}

	// Translate. Grants gate which templates are even considered.
	result, terr := s.translate(ctx, agentID, prompt, opts)
	if terr != nil {
		req.RejectionReason = terr.Error()
		req.Status = types.StatusRejected
		if err := s.persistNew(ctx, req); err != nil {
			return nil, err
		}
		recordRequest("translation_failed")
		return &SubmitResult{
			QueryRequestID: req.ID,
			Status:         req.Status,
			Errors:         []string{terr.Error()},
		}, nil
	}

	query := result.Query
	req.TargetEntity = query.TargetEntity
	req.Action = query.Action
	req.Params = query.Params
	req.GeneratedQueryText = query.QueryText

	// Validate.
	validation, err := s.validator.Validate(ctx, agentID, query.TargetEntity, query.Action, query.Params, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	req.ValidationWarnings = validation.Warnings
	if !validation.Valid {
		recordValidationFailure(string(opts.Mode))
		verr := &types.ValidationError{
			Entity:  query.TargetEntity,
			Action:  query.Action,
			Reasons: validation.Errors,
		}
		req.RejectionReason = verr.Error()
		req.Status = types.StatusRejected
		if err := s.persistNew(ctx, req); err != nil {
			return nil, err
		}
		recordRequest("validation_failed")
		return &SubmitResult{
			QueryRequestID: req.ID,
			Status:         req.Status,
			Warnings:       validation.Warnings,
			Errors:         validation.Errors,
		}, nil
	}

	// Approval state. A pre-vetted auto-approved template overrides the
	// grant's approval requirement; the caller must still opt in.
	requiresApproval := validation.Grant.RequiresApproval
	if result.MatchedTemplate != nil && result.MatchedTemplate.IsAutoApproved {
		requiresApproval = false
	}
	autoApprove := opts.AutoApprove && !requiresApproval

	if autoApprove {
		req.Status = types.StatusAutoApproved
	}
	if err := s.persistNew(ctx, req); err != nil {
		return nil, err
	}
	recordRequest(strings.ToLower(string(req.Status)))

	out := &SubmitResult{
		Success:          true,
		QueryRequestID:   req.ID,
		Status:           req.Status,
		RequiresApproval: !autoApprove,
		Warnings:         validation.Warnings,
	}
	if limit.Warning != "" {
		out.Warnings = append(out.Warnings, limit.Warning)
	}

	// Auto-approved requests execute immediately.
	if autoApprove {
		execResult, err := s.executor.Execute(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", req.ID, err)
		}
		out.Result = execResult
		out.Success = execResult.Success
		if execResult.Error != "" {
			out.Errors = append(out.Errors, execResult.Error)
		}
	}
	return out, nil
}

// DecideApproval applies a human decision to a pending request.
func (s *Service) DecideApproval(ctx context.Context, requestID string, approved bool, decidedBy, rejectionReason string) (*types.QueryRequest, error) {
	return s.approvals.Decide(ctx, requestID, approved, decidedBy, rejectionReason)
}

// Execute runs an approved request.
func (s *Service) Execute(ctx context.Context, requestID string) (*ExecResult, error) {
	return s.executor.Execute(ctx, requestID)
}

// PendingApprovals lists requests awaiting a decision.
func (s *Service) PendingApprovals(ctx context.Context, limit int) ([]types.QueryRequest, error) {
	return s.approvals.Pending(ctx, limit)
}

// GetRequest returns one request by ID.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*types.QueryRequest, error) {
	return s.store.GetRequest(ctx, requestID)
}

// ListRequests returns requests matching the filter.
func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]types.QueryRequest, error) {
	return s.store.ListRequests(ctx, filter)
}

func (s *Service) persistNew(ctx context.Context, req *types.QueryRequest) error {
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, req.AgentID, req.UserID, req.CreatedAt); err != nil {
			// The store count remains authoritative; a failed mirror write
			// only widens the soft-limit window.
			s.log.Warn(req.AgentID, req.ID, "Usage recording failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return nil
}

// translate builds translator options from the caller's grants and runs
// the translation.
func (s *Service) translate(ctx context.Context, agentID, prompt string, opts SubmitOptions) (*translator.Result, error) {
	grants, err := s.store.ActiveGrants(ctx, agentID)
	if err != nil {
		return nil, types.NewTranslationError(prompt, "failed to load grants", err)
	}
	if len(grants) == 0 {
		return nil, types.NewTranslationError(prompt, "agent has no active grants", nil)
	}

	schemaMaps := make([]types.SchemaMap, 0, len(grants))
	seen := make(map[string]bool)
	for _, g := range grants {
		if seen[g.SchemaMapID] {
			continue
		}
		seen[g.SchemaMapID] = true
		sm, err := s.store.GetSchemaMap(ctx, g.SchemaMapID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, types.NewTranslationError(prompt, "failed to load schema map", err)
		}
		if sm.IsActive {
			schemaMaps = append(schemaMaps, *sm)
		}
	}

	tropts := translator.Options{UseTemplates: opts.UseTemplates}
	if opts.UseTemplates {
		templates, err := s.store.ActiveTemplates(ctx)
		if err != nil {
			return nil, types.NewTranslationError(prompt, "failed to load templates", err)
		}
		tropts.Templates = filterTemplates(templates, grants)
	}

	result, err := s.translator.Translate(ctx, agentID, prompt, schemaMaps, tropts)
	if err != nil {
		recordTranslation("any", false)
		return nil, err
	}
	if result.MatchedTemplate != nil {
		recordTranslation("template", true)
	} else {
		recordTranslation("generative", true)
	}
	return result, nil
}

// filterTemplates keeps templates whose entity and action at least one
// grant permits, so template matching cannot propose a query the agent
// could never run.
func filterTemplates(templates []types.QueryTemplate, grants []types.PermissionGrant) []types.QueryTemplate {
	out := make([]types.QueryTemplate, 0, len(templates))
	for _, t := range templates {
		for i := range grants {
			g := &grants[i]
			if g.EntityAllowed(t.TargetEntity) && g.ActionAllowed(t.Action) && g.Level.Permits(t.Action) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
