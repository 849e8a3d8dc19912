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

// Package cassandra implements the repository interface over a
// Cassandra/ScyllaDB table.
package cassandra

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"querygate/platform/repository"
	"querygate/platform/shared/types"
)

// Repository serves one entity backed by one table.
type Repository struct {
	entity  string
	table   string
	session *gocql.Session
}

// New creates a repository for entity over the named table.
func New(session *gocql.Session, entity, table string) (*Repository, error) {
	if !repository.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Repository{entity: entity, table: table, session: session}, nil
}

// Connect creates a Cassandra session for the hosts and keyspace.
func Connect(hosts []string, keyspace string, timeout time.Duration) (*gocql.Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.NumConns = 2
	if timeout > 0 {
		cluster.Timeout = timeout
	} else {
		cluster.Timeout = 5 * time.Second
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}
	return session, nil
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
		result, err = r.find(ctx, action, params, where)
	case types.ActionCount, types.ActionAggregate:
		result, err = r.count(ctx, where)
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

func (r *Repository) find(ctx context.Context, action types.Action, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
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

	projection := "*"
	if len(fields) > 0 {
		projection = strings.Join(fields, ", ")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", projection, r.table)
	clause, args := whereClause(where)
	stmt += clause
	if take > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", take)
	}
	// Equality filters on non-key columns need filtering enabled; the
	// sandbox caps result sizes upstream.
	if len(where) > 0 {
		stmt += " ALLOW FILTERING"
	}

	iter := r.session.Query(stmt, args...).WithContext(ctx).Iter()

	rows := make([]map[string]interface{}, 0)
	for {
		row := make(map[string]interface{})
		if !iter.MapScan(row) {
			break
		}
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, repository.NewError(r.entity, action, "query failed", err)
	}
	return &repository.Result{Rows: rows}, nil
}

func (r *Repository) count(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)
	clause, args := whereClause(where)
	stmt += clause
	if len(where) > 0 {
		stmt += " ALLOW FILTERING"
	}

	var n int64
	if err := r.session.Query(stmt, args...).WithContext(ctx).Scan(&n); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCount, "count failed", err)
	}
	return &repository.Result{Count: n}, nil
}

func (r *Repository) create(ctx context.Context, params map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "bad params", err)
	}

	keys := sortedKeys(data)
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = data[k]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table, strings.Join(keys, ", "), strings.Join(placeholders, ", "))

	if err := r.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "insert failed", err)
	}
	// Cassandra does not report affected rows.
	return &repository.Result{Affected: 1}, nil
}

func (r *Repository) update(ctx context.Context, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "bad params", err)
	}
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update requires a where filter", nil)
	}

	sets := make([]string, 0, len(data))
	args := make([]interface{}, 0, len(data)+len(where))
	for _, k := range sortedKeys(data) {
		sets = append(sets, k+" = ?")
		args = append(args, data[k])
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s", r.table, strings.Join(sets, ", "))
	clause, whereArgs := whereClause(where)
	stmt += clause
	args = append(args, whereArgs...)

	if err := r.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update failed", err)
	}
	return &repository.Result{Affected: 1}, nil
}

func (r *Repository) delete(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete requires a where filter", nil)
	}

	stmt := fmt.Sprintf("DELETE FROM %s", r.table)
	clause, args := whereClause(where)
	stmt += clause

	if err := r.session.Query(stmt, args...).WithContext(ctx).Exec(); err != nil {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete failed", err)
	}
	return &repository.Result{Affected: 1}, nil
}

func whereClause(where map[string]interface{}) (string, []interface{}) {
	if len(where) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(where))
	args := make([]interface{}, 0, len(where))
	for _, k := range sortedKeys(where) {
		conds = append(conds, k+" = ?")
		args = append(args, where[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
