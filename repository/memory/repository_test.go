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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

func seededUsers() *Repository {
	repo := New("User")
	repo.Seed([]map[string]interface{}{
		{"id": "u1", "email": "ada@example.com", "isActive": true},
		{"id": "u2", "email": "bob@example.com", "isActive": false},
		{"id": "u3", "email": "cy@example.com", "isActive": true},
	})
	return repo
}

func TestFindManyWithFilterAndProjection(t *testing.T) {
	repo := seededUsers()

	res, err := repo.Execute(context.Background(), types.ActionFindMany, map[string]interface{}{
		"where":  map[string]interface{}{"isActive": true},
		"select": []interface{}{"email"},
	})
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "ada@example.com", res.Rows[0]["email"])
	_, hasID := res.Rows[0]["id"]
	assert.False(t, hasID, "projection should drop unselected fields")
}

func TestFindOneAndTake(t *testing.T) {
	repo := seededUsers()

	res, err := repo.Execute(context.Background(), types.ActionFindOne, map[string]interface{}{
		"where": map[string]interface{}{"id": "u2"},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob@example.com", res.Rows[0]["email"])

	res, err = repo.Execute(context.Background(), types.ActionFindMany, map[string]interface{}{
		"take": float64(2),
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestCountCreateUpdateDelete(t *testing.T) {
	repo := seededUsers()
	ctx := context.Background()

	res, err := repo.Execute(ctx, types.ActionCount, map[string]interface{}{
		"where": map[string]interface{}{"isActive": true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Count)

	res, err = repo.Execute(ctx, types.ActionCreate, map[string]interface{}{
		"data": map[string]interface{}{"email": "new@example.com", "isActive": true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.NotEmpty(t, res.Rows[0]["id"], "create assigns an id")
	assert.Equal(t, 4, repo.Len())

	res, err = repo.Execute(ctx, types.ActionUpdate, map[string]interface{}{
		"where": map[string]interface{}{"isActive": false},
		"data":  map[string]interface{}{"isActive": true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	res, err = repo.Execute(ctx, types.ActionDelete, map[string]interface{}{
		"where": map[string]interface{}{"id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, 3, repo.Len())
}

func TestUnsupportedActionAndBadParams(t *testing.T) {
	repo := seededUsers()
	ctx := context.Background()

	_, err := repo.Execute(ctx, types.Action("explode"), nil)
	assert.Error(t, err)

	_, err = repo.Execute(ctx, types.ActionUpdate, map[string]interface{}{
		"where": map[string]interface{}{"id": "u1"},
	})
	assert.Error(t, err, "update without data must fail")
}
