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

package types

import (
	"encoding/json"
	"time"
)

// Action identifies an operation an agent can request against an entity.
type Action string

// Standard actions understood by the entity repositories.
const (
	ActionFindMany  Action = "findMany"
	ActionFindOne   Action = "findOne"
	ActionCount     Action = "count"
	ActionAggregate Action = "aggregate"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
)

// IsWrite reports whether the action mutates data.
func (a Action) IsWrite() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// IsList reports whether the action can return an unbounded result set.
func (a Action) IsList() bool {
	return a == ActionFindMany || a == ActionAggregate
}

// FieldType is the declared type of a schema map field.
type FieldType string

// Field types supported by schema maps. These mirror the type names agents
// see in the serialized schema, not Go type names.
const (
	FieldTypeString   FieldType = "String"
	FieldTypeInt      FieldType = "Int"
	FieldTypeFloat    FieldType = "Float"
	FieldTypeBoolean  FieldType = "Boolean"
	FieldTypeDateTime FieldType = "DateTime"
	FieldTypeJSON     FieldType = "Json"
)

// Matches reports whether a runtime value (as decoded from JSON) satisfies
// the declared field type. JSON numbers arrive as float64, so Int accepts
// any float64 with an integral value.
func (t FieldType) Matches(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t {
	case FieldTypeString:
		_, ok := v.(string)
		return ok
	case FieldTypeInt:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		default:
			return false
		}
	case FieldTypeFloat:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		default:
			return false
		}
	case FieldTypeBoolean:
		_, ok := v.(bool)
		return ok
	case FieldTypeDateTime:
		switch d := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, d)
			return err == nil
		default:
			return false
		}
	case FieldTypeJSON:
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return true
		default:
			return false
		}
	default:
		// Unknown declared type: do not fail values on it.
		return true
	}
}

// EntitySpec describes what an agent may do with a single entity.
type EntitySpec struct {
	AllowedActions []Action             `json:"allowed_actions"`
	AllowedFields  []string             `json:"allowed_fields"`
	RequiredFields []string             `json:"required_fields,omitempty"`
	FieldTypes     map[string]FieldType `json:"field_types,omitempty"`
}

// ActionAllowed reports whether the spec permits the action.
func (s *EntitySpec) ActionAllowed(a Action) bool {
	for _, allowed := range s.AllowedActions {
		if allowed == a {
			return true
		}
	}
	return false
}

// FieldAllowed reports whether the spec permits referencing the field.
func (s *EntitySpec) FieldAllowed(name string) bool {
	for _, allowed := range s.AllowedFields {
		if allowed == name {
			return true
		}
	}
	return false
}

// SchemaMap is the declarative whitelist of entities an agent may ever
// touch. Schema maps are immutable once referenced by an executed request;
// changes create a new version row rather than mutating history.
type SchemaMap struct {
	ID          string                `json:"id" db:"id"`
	Name        string                `json:"name" db:"name"`
	Version     int                   `json:"version" db:"version"`
	EntitySpecs map[string]EntitySpec `json:"entity_specs" db:"entity_specs"`
	IsActive    bool                  `json:"is_active" db:"is_active"`
	Owner       string                `json:"owner,omitempty" db:"owner"`
	OrgID       string                `json:"org_id,omitempty" db:"org_id"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at" db:"updated_at"`
}

// Entity looks up the spec for an entity. An entity absent from the map is
// implicitly forbidden.
func (m *SchemaMap) Entity(name string) (EntitySpec, bool) {
	spec, ok := m.EntitySpecs[name]
	return spec, ok
}

// PermissionLevel grades how much a grant lets an agent do.
type PermissionLevel string

const (
	LevelReadOnly   PermissionLevel = "READ_ONLY"
	LevelReadWrite  PermissionLevel = "READ_WRITE"
	LevelFullAccess PermissionLevel = "FULL_ACCESS"
)

// Permits reports whether the permission level is compatible with the
// action. READ_ONLY forbids every mutating action regardless of what the
// schema map allows; delete additionally requires FULL_ACCESS.
func (l PermissionLevel) Permits(a Action) bool {
	switch l {
	case LevelReadOnly:
		return !a.IsWrite()
	case LevelReadWrite:
		return a != ActionDelete
	case LevelFullAccess:
		return true
	default:
		return false
	}
}

// PermissionGrant binds an agent to a schema map with a permission level
// and quota. Empty AllowedEntities/AllowedActions mean the grant defers
// entirely to the schema map.
type PermissionGrant struct {
	ID               string          `json:"id" db:"id"`
	AgentID          string          `json:"agent_id" db:"agent_id"`
	SchemaMapID      string          `json:"schema_map_id" db:"schema_map_id"`
	Level            PermissionLevel `json:"level" db:"level"`
	AllowedEntities  []string        `json:"allowed_entities,omitempty"`
	AllowedActions   []Action        `json:"allowed_actions,omitempty"`
	MaxQueriesPerDay int             `json:"max_queries_per_day" db:"max_queries_per_day"`
	RequiresApproval bool            `json:"requires_approval" db:"requires_approval"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// EntityAllowed reports whether the grant covers the entity.
func (g *PermissionGrant) EntityAllowed(name string) bool {
	if len(g.AllowedEntities) == 0 {
		return true
	}
	for _, e := range g.AllowedEntities {
		if e == name {
			return true
		}
	}
	return false
}

// ActionAllowed reports whether the grant covers the action.
func (g *PermissionGrant) ActionAllowed(a Action) bool {
	if len(g.AllowedActions) == 0 {
		return true
	}
	for _, allowed := range g.AllowedActions {
		if allowed == a {
			return true
		}
	}
	return false
}

// TemplateParameter defines a parameter that can be extracted from a prompt
// and substituted into a query template.
type TemplateParameter struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type,omitempty"`
	Default    any       `json:"default,omitempty"`
	Required   bool      `json:"required,omitempty"`
	Validation string    `json:"validation,omitempty"` // regex pattern for extraction
}

// QueryTemplate is a declarative, pre-vetted query. Matching a prompt to a
// template bypasses free-form LLM generation entirely.
type QueryTemplate struct {
	ID              string              `json:"id" db:"id"`
	Name            string              `json:"name" db:"name"`
	TemplateText    string              `json:"template_text" db:"template_text"`
	TargetEntity    string              `json:"target_entity" db:"target_entity"`
	Action          Action              `json:"action" db:"action"`
	ParameterSchema []TemplateParameter `json:"parameter_schema,omitempty"`
	IsAutoApproved  bool                `json:"is_auto_approved" db:"is_auto_approved"`
	Category        string              `json:"category,omitempty" db:"category"`
	IsActive        bool                `json:"is_active" db:"is_active"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}

// RequestStatus is the approval state machine field of a QueryRequest.
type RequestStatus string

const (
	StatusPending      RequestStatus = "PENDING"
	StatusAutoApproved RequestStatus = "AUTO_APPROVED"
	StatusApproved     RequestStatus = "APPROVED"
	StatusRejected     RequestStatus = "REJECTED"
)

// QueryRequest is the compliance record of one prompt submission. It is
// created once per prompt, mutated only by validation, approval, and
// execution, and never deleted.
type QueryRequest struct {
	ID                 string                 `json:"id" db:"id"`
	AgentID            string                 `json:"agent_id" db:"agent_id"`
	UserID             string                 `json:"user_id" db:"user_id"`
	SessionID          string                 `json:"session_id,omitempty" db:"session_id"`
	Prompt             string                 `json:"prompt" db:"prompt"`
	GeneratedQueryText string                 `json:"generated_query_text,omitempty" db:"generated_query_text"`
	TargetEntity       string                 `json:"target_entity" db:"target_entity"`
	Action             Action                 `json:"action" db:"action"`
	Params             map[string]interface{} `json:"params,omitempty"`
	Status             RequestStatus          `json:"status" db:"status"`
	SandboxMode        SandboxMode            `json:"sandbox_mode,omitempty" db:"sandbox_mode"`
	ValidationWarnings []string               `json:"validation_warnings,omitempty"`
	ApprovedBy         string                 `json:"approved_by,omitempty" db:"approved_by"`
	RejectionReason    string                 `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ExecutedAt         *time.Time             `json:"executed_at,omitempty" db:"executed_at"`
	Result             json.RawMessage        `json:"result,omitempty" db:"result"`
	ExecutionError     string                 `json:"execution_error,omitempty" db:"execution_error"`
	AuditLogID         string                 `json:"audit_log_id,omitempty" db:"audit_log_id"`
	CreatedAt          time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" db:"updated_at"`
}

// IsApproved reports whether the request may be executed.
func (r *QueryRequest) IsApproved() bool {
	return r.Status == StatusApproved || r.Status == StatusAutoApproved
}

// IsExecuted reports whether the executor has already consumed the request.
// Executed requests are terminal; the idempotency guard refuses a second run.
func (r *QueryRequest) IsExecuted() bool {
	return r.ExecutedAt != nil
}

// IsTerminal reports whether no further state transitions are possible.
func (r *QueryRequest) IsTerminal() bool {
	return r.Status == StatusRejected || r.IsExecuted() || r.ExecutionError != ""
}

// Audit entry status values.
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditLogEntry is the immutable record of one executed (or attempted)
// query. Oversized params and results are truncated to a configured byte
// cap before persistence rather than stored unbounded.
type AuditLogEntry struct {
	LogID        string    `json:"log_id" db:"log_id"`
	Entity       string    `json:"entity" db:"entity"`
	Action       Action    `json:"action" db:"action"`
	ParamsDigest string    `json:"params_digest,omitempty" db:"params_digest"`
	DurationMs   int64     `json:"duration_ms" db:"duration_ms"`
	Status       string    `json:"status" db:"status"`
	IsSlow       bool      `json:"is_slow" db:"is_slow"`
	ResultSize   int       `json:"result_size" db:"result_size"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	Tags         []string  `json:"tags,omitempty"`
	OwnerIDs     []string  `json:"owner_ids,omitempty"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// SandboxMode controls whether type and advisory violations block execution
// or merely warn.
type SandboxMode string

const (
	// ModeStrict treats every type/requirement violation as an error.
	ModeStrict SandboxMode = "strict"

	// ModePermissive demotes advisory classes to warnings while still
	// erroring on authorization failures.
	ModePermissive SandboxMode = "permissive"
)

// StructuredQuery is a candidate query produced by the prompt translator,
// not yet validated against any grant.
type StructuredQuery struct {
	TargetEntity string                 `json:"target_entity"`
	Action       Action                 `json:"action"`
	Params       map[string]interface{} `json:"params,omitempty"`
	QueryText    string                 `json:"query_text,omitempty"`
	TemplateID   string                 `json:"template_id,omitempty"`
}
