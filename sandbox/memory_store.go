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
	"sort"
	"sync"
	"time"

	"querygate/platform/shared/types"
)

// MemoryStore is an in-memory Store for tests and single-process
// development. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	grants     []types.PermissionGrant
	schemaMaps map[string]types.SchemaMap
	templates  []types.QueryTemplate
	requests   map[string]types.QueryRequest
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemaMaps: make(map[string]types.SchemaMap),
		requests:   make(map[string]types.QueryRequest),
	}
}

// AddGrant registers a grant. Setup helper.
func (s *MemoryStore) AddGrant(g types.PermissionGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, g)
}

// AddSchemaMap registers a schema map. Setup helper.
func (s *MemoryStore) AddSchemaMap(m types.SchemaMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaMaps[m.ID] = m
}

// AddTemplate registers a template. Setup helper.
func (s *MemoryStore) AddTemplate(t types.QueryTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
}

// DeactivateSchemaMap flips a schema map inactive. Test helper for the
// stale-permissions path.
func (s *MemoryStore) DeactivateSchemaMap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.schemaMaps[id]; ok {
		m.IsActive = false
		s.schemaMaps[id] = m
	}
}

// DeactivateGrants flips all of an agent's grants inactive. Test helper.
func (s *MemoryStore) DeactivateGrants(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.grants {
		if s.grants[i].AgentID == agentID {
			s.grants[i].IsActive = false
		}
	}
}

// ActiveGrants implements Store.
func (s *MemoryStore) ActiveGrants(ctx context.Context, agentID string) ([]types.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PermissionGrant, 0)
	for _, g := range s.grants {
		if g.AgentID == agentID && g.IsActive {
			out = append(out, g)
		}
	}
	return out, nil
}

// GetSchemaMap implements Store.
func (s *MemoryStore) GetSchemaMap(ctx context.Context, id string) (*types.SchemaMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.schemaMaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// ActiveTemplates implements Store.
func (s *MemoryStore) ActiveTemplates(ctx context.Context) ([]types.QueryTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.QueryTemplate, 0)
	for _, t := range s.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// CreateRequest implements Store.
func (s *MemoryStore) CreateRequest(ctx context.Context, req *types.QueryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// GetRequest implements Store.
func (s *MemoryStore) GetRequest(ctx context.Context, id string) (*types.QueryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRequest(&req)
	return &out, nil
}

// UpdateRequest implements Store.
func (s *MemoryStore) UpdateRequest(ctx context.Context, req *types.QueryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return ErrNotFound
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// ListRequests implements Store.
func (s *MemoryStore) ListRequests(ctx context.Context, filter RequestFilter) ([]types.QueryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.QueryRequest, 0)
	for _, req := range s.requests {
		if filter.AgentID != "" && req.AgentID != filter.AgentID {
			continue
		}
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountRequestsSince implements Store.
func (s *MemoryStore) CountRequestsSince(ctx context.Context, agentID, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, req := range s.requests {
		if req.AgentID != agentID {
			continue
		}
		if userID != "" && req.UserID != userID {
			continue
		}
		if req.CreatedAt.Before(since) {
			continue
		}
		n++
	}
	return n, nil
}

func cloneRequest(req *types.QueryRequest) types.QueryRequest {
	out := *req
	if req.Params != nil {
		out.Params = make(map[string]interface{}, len(req.Params))
		for k, v := range req.Params {
			out.Params[k] = v
		}
	}
	out.ValidationWarnings = append([]string(nil), req.ValidationWarnings...)
	if req.ExecutedAt != nil {
		t := *req.ExecutedAt
		out.ExecutedAt = &t
	}
	return out
}
