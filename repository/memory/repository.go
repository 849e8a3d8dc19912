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

// Package memory provides an in-memory repository used in tests and
// single-process development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"querygate/platform/repository"
	"querygate/platform/shared/types"
)

// Repository stores rows for one entity in memory. Safe for concurrent
// use.
type Repository struct {
	entity string

	mu   sync.RWMutex
	rows []map[string]interface{}
}

// New creates an empty in-memory repository for the entity.
func New(entity string) *Repository {
	return &Repository{entity: entity}
}

// Seed replaces the stored rows. Test helper.
func (r *Repository) Seed(rows []map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		r.rows[i] = cloneRow(row)
	}
}

// Len returns the stored row count. Test helper.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// Entity implements repository.Repository.
func (r *Repository) Entity() string {
	return r.entity
}

// Execute implements repository.Repository.
func (r *Repository) Execute(ctx context.Context, action types.Action, params map[string]interface{}) (*repository.Result, error) {
	start := time.Now()

	where, err := repository.Where(params)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "bad params", err)
	}

	var result *repository.Result
	switch action {
	case types.ActionFindMany, types.ActionFindOne:
		result, err = r.find(action, params, where)
	case types.ActionCount, types.ActionAggregate:
		result, err = r.count(where)
	case types.ActionCreate:
		result, err = r.create(params)
	case types.ActionUpdate:
		result, err = r.update(params, where)
	case types.ActionDelete:
		result, err = r.delete(where)
	default:
		return nil, repository.NewError(r.entity, action, "unsupported action", nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Repository) find(action types.Action, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	fields, err := repository.Select(params)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "bad params", err)
	}
	take, err := repository.Take(params)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "bad params", err)
	}
	if action == types.ActionFindOne {
		take = 1
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]interface{}, 0)
	for _, row := range r.rows {
		if !matches(row, where) {
			continue
		}
		out = append(out, project(row, fields))
		if take > 0 && len(out) >= take {
			break
		}
	}
	return &repository.Result{Rows: out}, nil
}

func (r *Repository) count(where map[string]interface{}) (*repository.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, row := range r.rows {
		if matches(row, where) {
			n++
		}
	}
	return &repository.Result{Count: n}, nil
}

func (r *Repository) create(params map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "bad params", err)
	}

	row := cloneRow(data)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.New().String()
	}

	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()

	return &repository.Result{Rows: []map[string]interface{}{cloneRow(row)}, Affected: 1}, nil
}

func (r *Repository) update(params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "bad params", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var affected int64
	for _, row := range r.rows {
		if !matches(row, where) {
			continue
		}
		for k, v := range data {
			row[k] = v
		}
		affected++
	}
	return &repository.Result{Affected: affected}, nil
}

func (r *Repository) delete(where map[string]interface{}) (*repository.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	var affected int64
	for _, row := range r.rows {
		if matches(row, where) {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return &repository.Result{Affected: affected}, nil
}

func matches(row, where map[string]interface{}) bool {
	for field, want := range where {
		if row[field] != want {
			return false
		}
	}
	return true
}

func project(row map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		return cloneRow(row)
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

func cloneRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
