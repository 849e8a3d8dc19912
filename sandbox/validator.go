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
	"fmt"
	"sort"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// ValidationResult is the validator's verdict on one candidate query.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Grant is the authorizing grant when Valid. The approval step reads
	// its RequiresApproval flag.
	Grant *types.PermissionGrant `json:"-"`

	// SchemaMapID identifies the schema map the query was checked
	// against.
	SchemaMapID string `json:"schema_map_id,omitempty"`
}

// Validator checks candidate queries against permission grants and
// schema maps. It is the only gate between generated output and a live
// data mutation.
type Validator struct {
	store Store
	log   *logger.Logger
}

// NewValidator creates a Validator over the store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store, log: logger.New("validator")}
}

// Validate checks the (entity, action, params) triple for the agent.
// Overall validity requires at least one active grant to fully authorize
// the entity/action pair; field checks then run against that grant's
// schema map. Grants that fail a check are skipped, not immediately
// fatal.
func (v *Validator) Validate(ctx context.Context, agentID, targetEntity string, action types.Action, params map[string]interface{}, mode types.SandboxMode) (*ValidationResult, error) {
	if mode != types.ModeStrict && mode != types.ModePermissive {
		mode = types.ModeStrict
	}

	grants, err := v.store.ActiveGrants(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load grants for %s: %w", agentID, err)
	}
	if len(grants) == 0 {
		return &ValidationResult{
			Errors: []string{"no permissions: agent has no active grants"},
		}, nil
	}

	// Find the first grant that fully authorizes the entity/action pair.
	var authorizing *types.PermissionGrant
	var schemaMap *types.SchemaMap
	skipReasons := make([]string, 0)

	for i := range grants {
		grant := &grants[i]

		sm, err := v.store.GetSchemaMap(ctx, grant.SchemaMapID)
		if err != nil {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: schema map unavailable", grant.ID))
			continue
		}
		if !sm.IsActive {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: schema map %s is inactive", grant.ID, sm.ID))
			continue
		}

		spec, ok := sm.Entity(targetEntity)
		if !ok {
			// Entities absent from the schema map are implicitly forbidden.
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: entity %s not in schema map", grant.ID, targetEntity))
			continue
		}
		if !spec.ActionAllowed(action) {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: action %s not allowed on %s by schema map", grant.ID, action, targetEntity))
			continue
		}
		if !grant.EntityAllowed(targetEntity) {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: entity %s not in grant whitelist", grant.ID, targetEntity))
			continue
		}
		if !grant.ActionAllowed(action) {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: action %s not in grant whitelist", grant.ID, action))
			continue
		}
		if !grant.Level.Permits(action) {
			skipReasons = append(skipReasons, fmt.Sprintf("grant %s: permission level %s forbids %s", grant.ID, grant.Level, action))
			continue
		}

		authorizing = grant
		schemaMap = sm
		break
	}

	if authorizing == nil {
		errs := []string{fmt.Sprintf("no grant authorizes %s on %s", action, targetEntity)}
		errs = append(errs, skipReasons...)
		v.log.Warn(agentID, "", "Validation denied", map[string]interface{}{
			"entity": targetEntity,
			"action": string(action),
		})
		return &ValidationResult{Errors: errs}, nil
	}

	result := &ValidationResult{
		Grant:       authorizing,
		SchemaMapID: schemaMap.ID,
	}
	spec, _ := schemaMap.Entity(targetEntity)
	v.checkFields(&spec, action, params, mode, result)

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		result.Grant = nil
	}
	return result, nil
}

// checkFields runs field, requirement, type, and advisory checks against
// the authorizing grant's entity spec.
func (v *Validator) checkFields(spec *types.EntitySpec, action types.Action, params map[string]interface{}, mode types.SandboxMode, result *ValidationResult) {
	referenced := referencedFields(params)

	// Whitelist check: disallowed fields are an error in both modes.
	for _, field := range sortedFieldNames(referenced) {
		if !spec.FieldAllowed(field) {
			result.Errors = append(result.Errors, fmt.Sprintf("field %s is not allowed", field))
		}
	}

	// Required fields must be present among the referenced fields.
	for _, required := range spec.RequiredFields {
		if _, ok := referenced[required]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("required field %s is missing", required))
		}
	}

	// Type checks: error in strict mode, warning in permissive mode.
	for _, field := range sortedFieldNames(referenced) {
		value := referenced[field]
		if value == nil {
			continue
		}
		declared, ok := spec.FieldTypes[field]
		if !ok || declared.Matches(value) {
			continue
		}
		msg := fmt.Sprintf("field %s should be of type %s", field, declared)
		if mode == types.ModeStrict {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}

	// Advisory: unbounded list queries. Permissive mode only, never
	// blocking.
	if mode == types.ModePermissive && action.IsList() {
		if _, ok := params["take"]; !ok {
			result.Warnings = append(result.Warnings, "list query has no result-size limit; consider adding take")
		}
	}
}

// referencedFields collects every field the params touch: filter keys,
// selected fields, write data keys, and ordering keys. Values are kept
// for filter and data fields so type checks can run; select/orderBy
// references map to nil.
func referencedFields(params map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{})

	if where, ok := params["where"].(map[string]interface{}); ok {
		for k, v := range where {
			fields[k] = v
		}
	}
	if data, ok := params["data"].(map[string]interface{}); ok {
		for k, v := range data {
			fields[k] = v
		}
	}
	if sel, ok := params["select"].([]interface{}); ok {
		for _, item := range sel {
			if name, ok := item.(string); ok {
				if _, exists := fields[name]; !exists {
					fields[name] = nil
				}
			}
		}
	}
	if orderBy, ok := params["orderBy"].(map[string]interface{}); ok {
		for k := range orderBy {
			if _, exists := fields[k]; !exists {
				fields[k] = nil
			}
		}
	}
	return fields
}

func sortedFieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
