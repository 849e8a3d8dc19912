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

// Package repository defines the per-entity data access abstraction the
// executor dispatches against, plus a fixed registry built at startup.
// Unregistered entities fail closed; there is no reflective dispatch.
package repository

import (
	"context"
	"fmt"
	"time"

	"querygate/platform/shared/types"
)

// Result is the outcome of one repository operation.
type Result struct {
	// Rows holds returned records for read actions.
	Rows []map[string]interface{} `json:"rows,omitempty"`

	// Count is the result of count/aggregate actions.
	Count int64 `json:"count,omitempty"`

	// Affected is the number of records touched by a write action.
	Affected int64 `json:"affected,omitempty"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"-"`
}

// Repository executes permitted actions against one entity's backing
// store. Implementations receive only queries that already passed the
// sandbox validator, but still reject malformed params themselves.
type Repository interface {
	// Entity returns the entity name this repository serves.
	Entity() string

	// Execute runs the action with the given params.
	Execute(ctx context.Context, action types.Action, params map[string]interface{}) (*Result, error)
}

// RepositoryError wraps backend failures with entity/action context. The
// underlying store error stays inside Cause and is never shown to agents.
type RepositoryError struct {
	Entity string
	Action types.Action
	Msg    string
	Cause  error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("repository %s/%s: %s: %v", e.Entity, e.Action, e.Msg, e.Cause)
	}
	return fmt.Sprintf("repository %s/%s: %s", e.Entity, e.Action, e.Msg)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// NewError creates a RepositoryError.
func NewError(entity string, action types.Action, msg string, cause error) *RepositoryError {
	return &RepositoryError{Entity: entity, Action: action, Msg: msg, Cause: cause}
}
