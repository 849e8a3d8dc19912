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

// Package mysql implements the repository interface over a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

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

// Open connects to MySQL and configures the pool. The DSN should include
// parseTime=true so DATETIME columns scan as time.Time.
func Open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
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
		result, err = r.write(ctx, types.ActionCreate, params, nil)
	case types.ActionUpdate:
		result, err = r.write(ctx, types.ActionUpdate, params, where)
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
	clause, args := whereClause(where)
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
	clause, args := whereClause(where)
	query += clause

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCount, "count failed", err)
	}
	return &repository.Result{Count: n}, nil
}

// write handles create and update; both share data extraction.
func (r *Repository) write(ctx context.Context, action types.Action, params map[string]interface{}, where map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "bad params", err)
	}

	var query string
	var args []interface{}

	if action == types.ActionCreate {
		keys := make([]string, 0, len(data))
		placeholders := make([]string, 0, len(data))
		for _, k := range sortedKeys(data) {
			keys = append(keys, quote(k))
			placeholders = append(placeholders, "?")
			args = append(args, data[k])
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(r.table), strings.Join(keys, ", "), strings.Join(placeholders, ", "))
	} else {
		if len(where) == 0 {
			return nil, repository.NewError(r.entity, action, "update requires a where filter", nil)
		}
		sets := make([]string, 0, len(data))
		for _, k := range sortedKeys(data) {
			sets = append(sets, quote(k)+" = ?")
			args = append(args, data[k])
		}
		query = fmt.Sprintf("UPDATE %s SET %s", quote(r.table), strings.Join(sets, ", "))
		clause, whereArgs := whereClause(where)
		query += clause
		args = append(args, whereArgs...)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "write failed", err)
	}
	affected, _ := res.RowsAffected()
	return &repository.Result{Affected: affected}, nil
}

func (r *Repository) delete(ctx context.Context, where map[string]interface{}) (*repository.Result, error) {
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete requires a where filter", nil)
	}

	query := fmt.Sprintf("DELETE FROM %s", quote(r.table))
	clause, args := whereClause(where)
	query += clause

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete failed", err)
	}
	affected, _ := res.RowsAffected()
	return &repository.Result{Affected: affected}, nil
}

func whereClause(where map[string]interface{}) (string, []interface{}) {
	if len(where) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(where))
	args := make([]interface{}, 0, len(where))
	for _, k := range sortedKeys(where) {
		conds = append(conds, quote(k)+" = ?")
		args = append(args, where[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

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
	return "`" + identifier + "`"
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
