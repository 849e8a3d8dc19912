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

package redisrepo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, "Session")
}

func TestCreateAndFindOne(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res, err := repo.Execute(ctx, types.ActionCreate, map[string]interface{}{
		"data": map[string]interface{}{"id": "s1", "userId": "u1", "active": true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = repo.Execute(ctx, types.ActionFindOne, map[string]interface{}{
		"where": map[string]interface{}{"id": "s1"},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "u1", res.Rows[0]["userId"])
	assert.Equal(t, true, res.Rows[0]["active"], "types survive the JSON round trip")
}

func TestFindManyFiltersAndCounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, row := range []map[string]interface{}{
		{"id": "s1", "userId": "u1", "active": true},
		{"id": "s2", "userId": "u2", "active": false},
		{"id": "s3", "userId": "u1", "active": true},
	} {
		_, err := repo.Execute(ctx, types.ActionCreate, map[string]interface{}{"data": row})
		require.NoError(t, err)
	}

	res, err := repo.Execute(ctx, types.ActionFindMany, map[string]interface{}{
		"where": map[string]interface{}{"userId": "u1"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)

	res, err = repo.Execute(ctx, types.ActionCount, map[string]interface{}{
		"where": map[string]interface{}{"active": true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Count)
}

func TestUpdateAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Execute(ctx, types.ActionCreate, map[string]interface{}{
		"data": map[string]interface{}{"id": "s1", "active": true},
	})
	require.NoError(t, err)

	res, err := repo.Execute(ctx, types.ActionUpdate, map[string]interface{}{
		"where": map[string]interface{}{"id": "s1"},
		"data":  map[string]interface{}{"active": false},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = repo.Execute(ctx, types.ActionFindOne, map[string]interface{}{
		"where": map[string]interface{}{"id": "s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, res.Rows[0]["active"])

	res, err = repo.Execute(ctx, types.ActionDelete, map[string]interface{}{
		"where": map[string]interface{}{"id": "s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = repo.Execute(ctx, types.ActionFindOne, map[string]interface{}{
		"where": map[string]interface{}{"id": "s1"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestDeleteRequiresWhere(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Execute(context.Background(), types.ActionDelete, map[string]interface{}{})
	assert.Error(t, err)
}
