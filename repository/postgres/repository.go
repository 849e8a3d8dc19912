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

// Package postgres implements the repository interface over a PostgreSQL
// table using database/sql with lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"querygate/platform/repository"
	"querygate/platform/shared/types"
)

// Repository serves one entity backed by one table.
type Repository struct {
	entity string
	table  string
	db     *sql.DB
}

// New creates a repository for entity over the named table.
func New(db *sql.DB, entity, table string) (*Repository, error) {
	if !repository.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Repository{entity: entity, table: table, db: db}, nil
}

// Open connects to PostgreSQL and configures the pool.
func Open(connectionURL string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
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
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = quote(f)
		}
		projection = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", projection, quote(r.table))
	clause, args := whereClause(where, 1)
	query += clause
	if take > 0 {
		query += fmt.Sprintf(" LIMIT %d", take)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "query failed", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "scan failed", err)
	}
	return &repository.Result{Rows: out}, nil
}

func (r *Repository) count(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(r.table))
	clause, args := whereClause(where, 1)
	query += clause

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCount, "count failed", err)
	}
	return &repository.Result{Count: n}, nil
}

func (r *Repository) create(ctx context.Context, params map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "bad params", err)
	}

	keys := make([]string, 0, len(data))
	placeholders := make([]string, 0, len(data))
	args := make([]interface{}, 0, len(data))
	for i, k := range sortedDataKeys(data) {
		keys = append(keys, quote(k))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, data[k])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(r.table), strings.Join(keys, ", "), strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "insert failed", err)
	}
	affected, _ := res.RowsAffected()
	return &repository.Result{Affected: affected}, nil
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
	i := 1
	for _, k := range sortedDataKeys(data) {
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(k), i))
		args = append(args, data[k])
		i++
	}

	query := fmt.Sprintf("UPDATE %s SET %s", quote(r.table), strings.Join(sets, ", "))
	clause, whereArgs := whereClause(where, i)
	query += clause
	args = append(args, whereArgs...)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update failed", err)
	}
	affected, _ := res.RowsAffected()
	return &repository.Result{Affected: affected}, nil
}

func (r *Repository) delete(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete requires a where filter", nil)
	}

	query := fmt.Sprintf("DELETE FROM %s", quote(r.table))
	clause, args := whereClause(where, 1)
	query += clause

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete failed", err)
	}
	affected, _ := res.RowsAffected()
	return &repository.Result{Affected: affected}, nil
}

// whereClause builds an AND-joined equality clause with $n placeholders
// starting at argOffset. Keys are emitted in sorted order so statements
// are deterministic.
func whereClause(where map[string]interface{}, argOffset int) (string, []interface{}) {
	if len(where) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(where))
	args := make([]interface{}, 0, len(where))
	i := argOffset
	for _, k := range sortedDataKeys(where) {
		conds = append(conds, fmt.Sprintf("%s = $%d", quote(k), i))
		args = append(args, where[k])
		i++
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// scanRows converts sql.Rows into generic maps, normalizing []byte
// values to strings for JSON serialization.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

// sortedDataKeys keeps generated statement text deterministic.
func sortedDataKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
