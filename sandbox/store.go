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
	"time"

	"querygate/platform/shared/types"
)

// ErrNotFound is returned by store lookups for missing records.
var ErrNotFound = errors.New("not found")

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	AgentID string
	UserID  string
	Status  types.RequestStatus
	Limit   int
}

// Store is the persistence layer for grants, schema maps, templates,
// and query requests. Query requests are compliance records: they are
// created and updated, never deleted.
type Store interface {
	// ActiveGrants returns the agent's active permission grants.
	ActiveGrants(ctx context.Context, agentID string) ([]types.PermissionGrant, error)

	// GetSchemaMap returns a schema map by ID, active or not. Callers
	// decide how to treat inactive maps.
	GetSchemaMap(ctx context.Context, id string) (*types.SchemaMap, error)

	// ActiveTemplates returns all active query templates.
	ActiveTemplates(ctx context.Context) ([]types.QueryTemplate, error)

	// CreateRequest persists a new query request.
	CreateRequest(ctx context.Context, req *types.QueryRequest) error

	// GetRequest returns a request by ID, or ErrNotFound.
	GetRequest(ctx context.Context, id string) (*types.QueryRequest, error)

	// UpdateRequest persists the mutable fields of a request.
	UpdateRequest(ctx context.Context, req *types.QueryRequest) error

	// ListRequests returns requests matching the filter, newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]types.QueryRequest, error)

	// CountRequestsSince counts requests submitted by the agent (and,
	// when userID is non-empty, the user) at or after since. Used by the
	// store-backed rate limit counter.
	CountRequestsSince(ctx context.Context, agentID, userID string, since time.Time) (int, error)
}
