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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// PostgresStore is the production Store on PostgreSQL. Schema maps,
// grants, and templates are written by operators through their own
// tooling; this store only reads them. Query requests are insert/update
// only, matching their role as compliance records.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore creates the store and ensures its tables exist.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, log: logger.New("store")}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTables() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_maps (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			version      INTEGER NOT NULL DEFAULT 1,
			entity_specs JSONB NOT NULL DEFAULT '{}',
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			owner        TEXT NOT NULL DEFAULT '',
			org_id       TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS permission_grants (
			id                  TEXT PRIMARY KEY,
			agent_id            TEXT NOT NULL,
			schema_map_id       TEXT NOT NULL REFERENCES schema_maps(id),
			level               TEXT NOT NULL,
			allowed_entities    TEXT[],
			allowed_actions     TEXT[],
			max_queries_per_day INTEGER NOT NULL DEFAULT 0,
			requires_approval   BOOLEAN NOT NULL DEFAULT FALSE,
			is_active           BOOLEAN NOT NULL DEFAULT TRUE,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_grants_agent ON permission_grants (agent_id) WHERE is_active;
		CREATE TABLE IF NOT EXISTS query_templates (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			template_text    TEXT NOT NULL,
			target_entity    TEXT NOT NULL,
			action           TEXT NOT NULL,
			parameter_schema JSONB NOT NULL DEFAULT '[]',
			is_auto_approved BOOLEAN NOT NULL DEFAULT FALSE,
			category         TEXT NOT NULL DEFAULT '',
			is_active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS query_requests (
			id                   TEXT PRIMARY KEY,
			agent_id             TEXT NOT NULL,
			user_id              TEXT NOT NULL DEFAULT '',
			session_id           TEXT NOT NULL DEFAULT '',
			prompt               TEXT NOT NULL,
			generated_query_text TEXT NOT NULL DEFAULT '',
			target_entity        TEXT NOT NULL DEFAULT '',
			action               TEXT NOT NULL DEFAULT '',
			params               JSONB,
			status               TEXT NOT NULL,
			sandbox_mode         TEXT NOT NULL DEFAULT 'strict',
			validation_warnings  JSONB,
			approved_by          TEXT NOT NULL DEFAULT '',
			rejection_reason     TEXT NOT NULL DEFAULT '',
			executed_at          TIMESTAMPTZ,
			result               JSONB,
			execution_error      TEXT NOT NULL DEFAULT '',
			audit_log_id         TEXT NOT NULL DEFAULT '',
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_requests_agent_created ON query_requests (agent_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_requests_status ON query_requests (status);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create sandbox tables: %w", err)
	}
	return nil
}

// ActiveGrants implements Store.
func (s *PostgresStore) ActiveGrants(ctx context.Context, agentID string) ([]types.PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, schema_map_id, level, allowed_entities, allowed_actions,
		       max_queries_per_day, requires_approval, is_active, created_at, updated_at
		FROM permission_grants
		WHERE agent_id = $1 AND is_active
		ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.PermissionGrant, 0)
	for rows.Next() {
		var g types.PermissionGrant
		var entities, actions []string
		if err := rows.Scan(
			&g.ID, &g.AgentID, &g.SchemaMapID, &g.Level,
			pq.Array(&entities), pq.Array(&actions),
			&g.MaxQueriesPerDay, &g.RequiresApproval, &g.IsActive,
			&g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.AllowedEntities = entities
		for _, a := range actions {
			g.AllowedActions = append(g.AllowedActions, types.Action(a))
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetSchemaMap implements Store.
func (s *PostgresStore) GetSchemaMap(ctx context.Context, id string) (*types.SchemaMap, error) {
	var m types.SchemaMap
	var specs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, entity_specs, is_active, owner, org_id, created_at, updated_at
		FROM schema_maps WHERE id = $1`, id).Scan(
		&m.ID, &m.Name, &m.Version, &specs, &m.IsActive, &m.Owner, &m.OrgID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query schema map %s: %w", id, err)
	}
	if err := json.Unmarshal(specs, &m.EntitySpecs); err != nil {
		return nil, fmt.Errorf("decode entity specs for %s: %w", id, err)
	}
	return &m, nil
}

// ActiveTemplates implements Store.
func (s *PostgresStore) ActiveTemplates(ctx context.Context) ([]types.QueryTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, template_text, target_entity, action, parameter_schema,
		       is_auto_approved, category, is_active, created_at
		FROM query_templates
		WHERE is_active
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.QueryTemplate, 0)
	for rows.Next() {
		var t types.QueryTemplate
		var params []byte
		if err := rows.Scan(
			&t.ID, &t.Name, &t.TemplateText, &t.TargetEntity, &t.Action,
			&params, &t.IsAutoApproved, &t.Category, &t.IsActive, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &t.ParameterSchema); err != nil {
				return nil, fmt.Errorf("decode parameter schema for %s: %w", t.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateRequest implements Store.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *types.QueryRequest) error {
	params, warnings, err := encodeRequestJSON(req)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_requests
			(id, agent_id, user_id, session_id, prompt, generated_query_text,
			 target_entity, action, params, status, sandbox_mode, validation_warnings,
			 approved_by, rejection_reason, executed_at, result, execution_error,
			 audit_log_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		req.ID, req.AgentID, req.UserID, req.SessionID, req.Prompt, req.GeneratedQueryText,
		req.TargetEntity, string(req.Action), params, string(req.Status), string(req.SandboxMode), warnings,
		req.ApprovedBy, req.RejectionReason, req.ExecutedAt, nullableJSON(req.Result), req.ExecutionError,
		req.AuditLogID, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request %s: %w", req.ID, err)
	}
	return nil
}

// GetRequest implements Store.
func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*types.QueryRequest, error) {
	row := s.db.QueryRowContext(ctx, requestSelect+` WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query request %s: %w", id, err)
	}
	return req, nil
}

// UpdateRequest implements Store.
func (s *PostgresStore) UpdateRequest(ctx context.Context, req *types.QueryRequest) error {
	params, warnings, err := encodeRequestJSON(req)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE query_requests SET
			target_entity = $2, action = $3, params = $4, status = $5,
			sandbox_mode = $6, validation_warnings = $7, approved_by = $8,
			rejection_reason = $9, executed_at = $10, result = $11,
			execution_error = $12, audit_log_id = $13, updated_at = $14
		WHERE id = $1`,
		req.ID, req.TargetEntity, string(req.Action), params, string(req.Status),
		string(req.SandboxMode), warnings, req.ApprovedBy,
		req.RejectionReason, req.ExecutedAt, nullableJSON(req.Result),
		req.ExecutionError, req.AuditLogID, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", req.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRequests implements Store.
func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]types.QueryRequest, error) {
	query := requestSelect + ` WHERE 1=1`
	args := make([]interface{}, 0, 4)
	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]types.QueryRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// CountRequestsSince implements Store.
func (s *PostgresStore) CountRequestsSince(ctx context.Context, agentID, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM query_requests WHERE agent_id = $1 AND created_at >= $2`
	args := []interface{}{agentID, since}
	if userID != "" {
		query += ` AND user_id = $3`
		args = append(args, userID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

const requestSelect = `
	SELECT id, agent_id, user_id, session_id, prompt, generated_query_text,
	       target_entity, action, params, status, sandbox_mode, validation_warnings,
	       approved_by, rejection_reason, executed_at, result, execution_error,
	       audit_log_id, created_at, updated_at
	FROM query_requests`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*types.QueryRequest, error) {
	var req types.QueryRequest
	var params, warnings, result []byte
	var executedAt sql.NullTime

	if err := row.Scan(
		&req.ID, &req.AgentID, &req.UserID, &req.SessionID, &req.Prompt, &req.GeneratedQueryText,
		&req.TargetEntity, &req.Action, &params, &req.Status, &req.SandboxMode, &warnings,
		&req.ApprovedBy, &req.RejectionReason, &executedAt, &result, &req.ExecutionError,
		&req.AuditLogID, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if executedAt.Valid {
		t := executedAt.Time
		req.ExecutedAt = &t
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &req.ValidationWarnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if len(result) > 0 {
		req.Result = json.RawMessage(result)
	}
	return &req, nil
}

// encodeRequestJSON serializes the request's JSONB columns. Nil maps and
// slices become SQL NULL, not the string "null".
func encodeRequestJSON(req *types.QueryRequest) (params, warnings interface{}, err error) {
	if req.Params != nil {
		b, merr := json.Marshal(req.Params)
		if merr != nil {
			return nil, nil, fmt.Errorf("encode params for %s: %w", req.ID, merr)
		}
		params = b
	}
	if len(req.ValidationWarnings) > 0 {
		b, merr := json.Marshal(req.ValidationWarnings)
		if merr != nil {
			return nil, nil, fmt.Errorf("encode warnings for %s: %w", req.ID, merr)
		}
		warnings = b
	}
	return params, warnings, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
