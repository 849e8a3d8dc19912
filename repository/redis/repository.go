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

// Package redisrepo implements the repository interface over Redis
// hashes. Each record is one hash at "qg:<entity>:<id>" with field
// values JSON-encoded so types survive the round trip. Suited to
// key-oriented entities (sessions, feature flags, counters), not large
// scans.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"querygate/platform/repository"
	"querygate/platform/shared/types"
)

const keyPrefix = "qg"

// scanPageSize bounds one SCAN iteration.
const scanPageSize = 200

// Repository serves one entity backed by Redis hashes.
type Repository struct {
	entity string
	client *redis.Client
}

// New creates a repository for entity over the given client.
func New(client *redis.Client, entity string) *Repository {
	return &Repository{entity: entity, client: client}
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
	case types.ActionFindOne:
		result, err = r.findOne(ctx, where)
	case types.ActionFindMany:
		result, err = r.findMany(ctx, params, where)
	case types.ActionCount, types.ActionAggregate:
		result, err = r.countRows(ctx, where)
	case types.ActionCreate:
		result, err = r.create(ctx, params)
	case types.ActionUpdate:
		result, err = r.update(ctx, params, where)
	case types.ActionDelete:
		result, err = r.delete(ctx, where)
	default:
		return nil, repository.NewError(r.entity, action, "unsupported action", nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Repository) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, r.entity, id)
}

func (r *Repository) findOne(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	id, ok := where["id"].(string)
	if ok {
		row, err := r.load(ctx, r.key(id))
		if err != nil {
			return nil, repository.NewError(r.entity, types.ActionFindOne, "load failed", err)
		}
		if row == nil {
			return &repository.Result{Rows: []map[string]interface{}{}}, nil
		}
		return &repository.Result{Rows: []map[string]interface{}{row}}, nil
	}

	// No id filter: scan and return the first match.
	rows, err := r.scan(ctx, where, 1)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionFindOne, "scan failed", err)
	}
	return &repository.Result{Rows: rows}, nil
}

func (r *Repository) findMany(ctx context.Context, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	take, err := repository.Take(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionFindMany, "bad params", err)
	}
	rows, err := r.scan(ctx, where, take)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionFindMany, "scan failed", err)
	}
	return &repository.Result{Rows: rows}, nil
}

func (r *Repository) countRows(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	rows, err := r.scan(ctx, where, 0)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCount, "scan failed", err)
	}
	return &repository.Result{Count: int64(len(rows))}, nil
}

func (r *Repository) create(ctx context.Context, params map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "bad params", err)
	}

	id, ok := data["id"].(string)
	if !ok || id == "" {
		id = uuid.New().String()
		data["id"] = id
	}

	fields, err := encodeFields(data)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "encode failed", err)
	}
	if err := r.client.HSet(ctx, r.key(id), fields).Err(); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "hset failed", err)
	}
	return &repository.Result{Rows: []map[string]interface{}{data}, Affected: 1}, nil
}

func (r *Repository) update(ctx context.Context, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "bad params", err)
	}
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update requires a where filter", nil)
	}

	rows, err := r.scan(ctx, where, 0)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "scan failed", err)
	}

	fields, err := encodeFields(data)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "encode failed", err)
	}

	var affected int64
	for _, row := range rows {
		id, ok := row["id"].(string)
		if !ok {
			continue
		}
		if err := r.client.HSet(ctx, r.key(id), fields).Err(); err != nil {
			return nil, repository.NewError(r.entity, types.ActionUpdate, "hset failed", err)
		}
		affected++
	}
	return &repository.Result{Affected: affected}, nil
}

func (r *Repository) delete(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete requires a where filter", nil)
	}

	rows, err := r.scan(ctx, where, 0)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionDelete, "scan failed", err)
	}

	var affected int64
	for _, row := range rows {
		id, ok := row["id"].(string)
		if !ok {
			continue
		}
		n, err := r.client.Del(ctx, r.key(id)).Result()
		if err != nil {
			return nil, repository.NewError(r.entity, types.ActionDelete, "del failed", err)
		}
		affected += n
	}
	return &repository.Result{Affected: affected}, nil
}

// scan walks all keys for the entity and filters loaded rows. take=0
// means unlimited.
func (r *Repository) scan(ctx context.Context, where map[string]interface{}, take int) ([]map[string]interface{}, error) {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, r.entity)
	rows := make([]map[string]interface{}, 0)

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanPageSize).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			row, err := r.load(ctx, key)
			if err != nil {
				return nil, err
			}
			if row == nil || !matches(row, where) {
				continue
			}
			rows = append(rows, row)
			if take > 0 && len(rows) >= take {
				return rows, nil
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return rows, nil
}

func (r *Repository) load(ctx context.Context, key string) (map[string]interface{}, error) {
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	row := make(map[string]interface{}, len(raw))
	for field, encoded := range raw {
		var v interface{}
		if err := json.Unmarshal([]byte(encoded), &v); err != nil {
			// Legacy plain-string values.
			v = encoded
		}
		row[field] = v
	}
	return row, nil
}

func encodeFields(data map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		fields[k] = string(encoded)
	}
	return fields, nil
}

func matches(row, where map[string]interface{}) bool {
	for field, want := range where {
		if row[field] != want {
			return false
		}
	}
	return true
}
