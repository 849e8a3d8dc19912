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

// Package mongodb implements the repository interface over a MongoDB
// collection.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"querygate/platform/repository"
	"querygate/platform/shared/types"
)

// Repository serves one entity backed by one collection.
type Repository struct {
	entity     string
	collection *mongo.Collection
}

// New creates a repository for entity over the given collection.
func New(collection *mongo.Collection, entity string) *Repository {
	return &Repository{entity: entity, collection: collection}
}

// Connect establishes a MongoDB client and verifies connectivity.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}
	return client, nil
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
	filter := toFilter(where)

	var result *repository.Result
	switch action {
	case types.ActionFindMany, types.ActionFindOne:
		result, err = r.find(ctx, action, params, filter)
	case types.ActionCount, types.ActionAggregate:
		result, err = r.count(ctx, filter)
	case types.ActionCreate:
		result, err = r.create(ctx, params)
	case types.ActionUpdate:
		result, err = r.update(ctx, params, where, filter)
	case types.ActionDelete:
		result, err = r.delete(ctx, where, filter)
	default:
		return nil, repository.NewError(r.entity, action, "unsupported action", nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Repository) find(ctx context.Context, action types.Action, params map[string]interface{}, filter bson.M) (*repository.Result, error) {
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

	opts := options.Find()
	if take > 0 {
		opts.SetLimit(int64(take))
	}
	if len(fields) > 0 {
		projection := bson.M{}
		for _, f := range fields {
			projection[f] = 1
		}
		opts.SetProjection(projection)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, repository.NewError(r.entity, action, "find failed", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	rows := make([]map[string]interface{}, 0)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, repository.NewError(r.entity, action, "decode failed", err)
		}
		rows = append(rows, normalizeDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, repository.NewError(r.entity, action, "cursor failed", err)
	}
	return &repository.Result{Rows: rows}, nil
}

func (r *Repository) count(ctx context.Context, filter bson.M) (*repository.Result, error) {
	n, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCount, "count failed", err)
	}
	return &repository.Result{Count: n}, nil
}

func (r *Repository) create(ctx context.Context, params map[string]interface{}) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "bad params", err)
	}

	if _, err := r.collection.InsertOne(ctx, bson.M(data)); err != nil {
		return nil, repository.NewError(r.entity, types.ActionCreate, "insert failed", err)
	}
	return &repository.Result{Affected: 1}, nil
}

func (r *Repository) update(ctx context.Context, params map[string]interface{}, where map[string]interface{}, filter bson.M) (*repository.Result, error) {
	data, err := repository.Data(params)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "bad params", err)
	}
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update requires a where filter", nil)
	}

	res, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M(data)})
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionUpdate, "update failed", err)
	}
	return &repository.Result{Affected: res.ModifiedCount}, nil
}

func (r *Repository) delete(ctx context.Context, where map[string]interface{}, filter bson.M) (*repository.Result, error) {
	if len(where) == 0 {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete requires a where filter", nil)
	}

	res, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return nil, repository.NewError(r.entity, types.ActionDelete, "delete failed", err)
	}
	return &repository.Result{Affected: res.DeletedCount}, nil
}

// toFilter builds an equality filter. Operators are never passed through
// from params; a $-prefixed key would have been rejected upstream as an
// invalid identifier.
func toFilter(where map[string]interface{}) bson.M {
	filter := bson.M{}
	for k, v := range where {
		filter[k] = v
	}
	return filter
}

// normalizeDoc converts bson-specific values into JSON-friendly ones.
func normalizeDoc(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if oid, ok := v.(interface{ Hex() string }); ok {
			out[k] = oid.Hex()
			continue
		}
		out[k] = v
	}
	return out
}
