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

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

type stubRepo struct{ entity string }

func (s *stubRepo) Entity() string { return s.entity }
func (s *stubRepo) Execute(ctx context.Context, action types.Action, params map[string]interface{}) (*Result, error) {
	return &Result{}, nil
}

func TestRegistryLookupFailsClosed(t *testing.T) {
	reg, err := NewRegistry(&stubRepo{entity: "User"}, &stubRepo{entity: "Order"})
	require.NoError(t, err)

	repo, err := reg.Lookup("User")
	require.NoError(t, err)
	assert.Equal(t, "User", repo.Entity())

	_, err = reg.Lookup("Payment")
	assert.Error(t, err, "unregistered entity must fail closed")

	assert.Equal(t, []string{"Order", "User"}, reg.Entities())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&stubRepo{entity: "User"}, &stubRepo{entity: "User"})
	assert.Error(t, err)

	_, err = NewRegistry(&stubRepo{entity: ""})
	assert.Error(t, err)
}

func TestParamsHelpers(t *testing.T) {
	params := map[string]interface{}{
		"where":  map[string]interface{}{"isActive": true},
		"select": []interface{}{"id", "email"},
		"take":   float64(10),
		"data":   map[string]interface{}{"email": "a@b.c"},
	}

	where, err := Where(params)
	require.NoError(t, err)
	assert.Equal(t, true, where["isActive"])

	fields, err := Select(params)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, fields)

	take, err := Take(params)
	require.NoError(t, err)
	assert.Equal(t, 10, take)

	data, err := Data(params)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", data["email"])
}

func TestParamsRejectBadShapes(t *testing.T) {
	_, err := Where(map[string]interface{}{"where": "not an object"})
	assert.Error(t, err)

	_, err = Where(map[string]interface{}{"where": map[string]interface{}{"$gt": 1}})
	assert.Error(t, err, "operator-looking keys are not identifiers")

	_, err = Select(map[string]interface{}{"select": []interface{}{42}})
	assert.Error(t, err)

	_, err = Take(map[string]interface{}{"take": 2.5})
	assert.Error(t, err)

	_, err = Take(map[string]interface{}{"take": float64(-1)})
	assert.Error(t, err)

	_, err = Data(map[string]interface{}{})
	assert.Error(t, err)

	_, err = Data(map[string]interface{}{"data": map[string]interface{}{}})
	assert.Error(t, err)
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("isActive"))
	assert.True(t, ValidIdentifier("_private"))
	assert.False(t, ValidIdentifier("drop table"))
	assert.False(t, ValidIdentifier(`"; DROP TABLE users; --`))
	assert.False(t, ValidIdentifier("$where"))
	assert.False(t, ValidIdentifier(""))
}
