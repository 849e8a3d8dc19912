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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"querygate/platform/repository"
	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// ExecResult is the executor's answer to the caller. Error carries an
// opaque message; the underlying store error stays in the logs and the
// audit trail, never in agent-facing output.
type ExecResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Executor consumes approved requests exactly once.
type Executor struct {
	store     Store
	validator *Validator
	limiter   *RateLimiter
	registry  *repository.Registry
	audit     AuditSink
	cfg       AuditConfig
	log       *logger.Logger
}

// NewExecutor wires the executor.
func NewExecutor(store Store, validator *Validator, limiter *RateLimiter, registry *repository.Registry, audit AuditSink, cfg AuditConfig) *Executor {
	return &Executor{
		store:     store,
		validator: validator,
		limiter:   limiter,
		registry:  registry,
		audit:     audit,
		cfg:       cfg.withDefaults(),
		log:       logger.New("executor"),
	}
}

// Execute runs an approved request. Defense in depth: the validator and
// rate limiter run again here because permissions or usage may have
// changed since submission. A failure at this point is recorded as an
// executionError; the request keeps its approved status but becomes
// terminal, and a new submission is required to retry.
func (e *Executor) Execute(ctx context.Context, requestID string) (*ExecResult, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}

	// Idempotency guard: an executed request is terminal, no second run
	// and no second audit entry.
	if req.IsExecuted() {
		return nil, fmt.Errorf("request %s already executed at %s", requestID, req.ExecutedAt.Format(time.RFC3339))
	}
	if req.ExecutionError != "" {
		return nil, fmt.Errorf("request %s already failed: new submission required", requestID)
	}
	if !req.IsApproved() {
		return nil, fmt.Errorf("request %s is %s, not approved", requestID, req.Status)
	}

	// Re-validate against current grants and schema maps.
	validation, err := e.validator.Validate(ctx, req.AgentID, req.TargetEntity, req.Action, req.Params, req.SandboxMode)
	if err != nil {
		return nil, fmt.Errorf("re-validate request %s: %w", requestID, err)
	}
	if !validation.Valid {
		reason := "validation failed at execution: " + strings.Join(validation.Errors, "; ")
		return e.failBeforeDispatch(ctx, req, reason)
	}

	// Re-check the rate limit to close the submission-to-approval gap.
	limit, err := e.limiter.CheckExisting(ctx, req.AgentID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s: %w", requestID, err)
	}
	if !limit.Allowed {
		return e.failBeforeDispatch(ctx, req, limit.Reason)
	}

	repo, err := e.registry.Lookup(req.TargetEntity)
	if err != nil {
		return e.failBeforeDispatch(ctx, req, fmt.Sprintf("no repository for entity %s", req.TargetEntity))
	}

	start := time.Now()
	result, execErr := repo.Execute(ctx, req.Action, req.Params)
	duration := time.Since(start)

	now := time.Now().UTC()
	req.ExecutedAt = &now
	req.UpdatedAt = now

	if execErr != nil {
		entry := BuildAuditEntry(e.cfg, req, duration, 0, execErr)
		e.writeAudit(ctx, entry)
		req.AuditLogID = entry.LogID
		// Opaque to the caller; the cause only reaches the audit trail.
		failure := &types.ExecutionError{RequestID: req.ID, Cause: execErr}
		req.ExecutionError = failure.Error()
		if err := e.store.UpdateRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("update request %s: %w", requestID, err)
		}
		e.log.ErrorWithCode(req.AgentID, req.ID, "Execution failed", 500, execErr, map[string]interface{}{
			"entity": req.TargetEntity,
			"action": string(req.Action),
		})
		recordExecution(string(req.Action), false, duration)
		return &ExecResult{Error: req.ExecutionError}, nil
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		serialized = []byte(`{}`)
	}
	capped, size := TruncateResult(e.cfg, serialized)

	entry := BuildAuditEntry(e.cfg, req, duration, size, nil)
	e.writeAudit(ctx, entry)

	req.Result = capped
	req.AuditLogID = entry.LogID
	if err := e.store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("update request %s: %w", requestID, err)
	}

	e.log.InfoWithDuration(req.AgentID, req.ID, "Query executed", float64(duration.Milliseconds()), map[string]interface{}{
		"entity":      req.TargetEntity,
		"action":      string(req.Action),
		"result_size": size,
		"is_slow":     entry.IsSlow,
	})
	recordExecution(string(req.Action), true, duration)
	return &ExecResult{Success: true, Result: capped}, nil
}

// failBeforeDispatch records a pre-dispatch failure (stale permissions,
// exhausted quota, unregistered entity) on the request without touching
// the underlying store. The request stays in its approved status but is
// terminal.
func (e *Executor) failBeforeDispatch(ctx context.Context, req *types.QueryRequest, reason string) (*ExecResult, error) {
	failure := &types.ExecutionError{RequestID: req.ID, Message: reason}
	req.ExecutionError = failure.Error()
	req.UpdatedAt = time.Now().UTC()

	entry := BuildAuditEntry(e.cfg, req, 0, 0, failure)
	e.writeAudit(ctx, entry)
	req.AuditLogID = entry.LogID

	if err := e.store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("update request %s: %w", req.ID, err)
	}

	e.log.Warn(req.AgentID, req.ID, "Execution refused", map[string]interface{}{
		"reason": reason,
	})
	recordExecution(string(req.Action), false, 0)
	return &ExecResult{Error: reason}, nil
}

func (e *Executor) writeAudit(ctx context.Context, entry *types.AuditLogEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Write(ctx, entry); err != nil {
		e.log.Error("", "", "Audit write failed", map[string]interface{}{
			"log_id": entry.LogID,
			"error":  err.Error(),
		})
	}
}
