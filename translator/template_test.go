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

package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

func activeUsersTemplate() types.QueryTemplate {
	return types.QueryTemplate{
		ID:           "tpl-active-users",
		Name:         "find active users",
		TemplateText: `{"where": {"isActive": {{isActive}}}}`,
		TargetEntity: "User",
		Action:       types.ActionFindMany,
		ParameterSchema: []types.TemplateParameter{
			{Name: "isActive", Type: types.FieldTypeBoolean, Required: true},
		},
		IsAutoApproved: true,
		IsActive:       true,
	}
}

func TestMatchTemplateActiveUsers(t *testing.T) {
	query, err := matchTemplate("Find all active users", activeUsersTemplate())
	require.NoError(t, err)
	require.NotNil(t, query)

	assert.Equal(t, "User", query.TargetEntity)
	assert.Equal(t, types.ActionFindMany, query.Action)
	assert.Equal(t, "tpl-active-users", query.TemplateID)

	where, ok := query.Params["where"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, where["isActive"])
}

func TestMatchTemplateInactiveVariant(t *testing.T) {
	query, err := matchTemplate("show me inactive users please", activeUsersTemplate())
	require.NoError(t, err)
	require.NotNil(t, query)

	where := query.Params["where"].(map[string]interface{})
	assert.Equal(t, false, where["isActive"])
}

func TestMatchTemplateUnrelatedPrompt(t *testing.T) {
	query, err := matchTemplate("count orders placed yesterday", activeUsersTemplate())
	require.NoError(t, err)
	assert.Nil(t, query)
}

func TestMatchTemplateInactiveTemplateSkipped(t *testing.T) {
	tmpl := activeUsersTemplate()
	tmpl.IsActive = false

	query, err := matchTemplate("find all active users", tmpl)
	require.NoError(t, err)
	assert.Nil(t, query)
}

func TestMatchTemplateMissingRequiredParam(t *testing.T) {
	tmpl := types.QueryTemplate{
		ID:           "tpl-order-lookup",
		Name:         "lookup order",
		TemplateText: `{"where": {"id": {{orderId}}}}`,
		TargetEntity: "Order",
		Action:       types.ActionFindOne,
		ParameterSchema: []types.TemplateParameter{
			{Name: "orderId", Type: types.FieldTypeString, Required: true, Validation: `order\s+([A-Z]{3}-\d{4})`},
		},
		IsActive: true,
	}

	// No extractable order ID and no default: not a match.
	query, err := matchTemplate("lookup order for me", tmpl)
	require.NoError(t, err)
	assert.Nil(t, query)

	// Validation regex capture group drives extraction.
	query, err = matchTemplate("lookup order ABC-1234", tmpl)
	require.NoError(t, err)
	require.NotNil(t, query)
	where := query.Params["where"].(map[string]interface{})
	assert.Equal(t, "ABC-1234", where["id"])
}

func TestMatchTemplateDefaultApplied(t *testing.T) {
	tmpl := types.QueryTemplate{
		ID:           "tpl-recent-orders",
		Name:         "recent orders",
		TemplateText: `{"take": {{limit}}, "orderBy": {"createdAt": "desc"}}`,
		TargetEntity: "Order",
		Action:       types.ActionFindMany,
		ParameterSchema: []types.TemplateParameter{
			{Name: "limit", Type: types.FieldTypeInt, Default: 25},
		},
		IsActive: true,
	}

	query, err := matchTemplate("show recent orders", tmpl)
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Equal(t, float64(25), query.Params["take"])

	query, err = matchTemplate("show 10 recent orders", tmpl)
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Equal(t, float64(10), query.Params["take"])
}

func TestExtractParameterDates(t *testing.T) {
	param := types.TemplateParameter{Name: "since", Type: types.FieldTypeDateTime}

	v, ok := extractParameter("orders since 2026-08-01", param)
	require.True(t, ok)
	assert.Equal(t, "2026-08-01T00:00:00Z", v)

	_, ok = extractParameter("orders from whenever", param)
	assert.False(t, ok)
}

func TestRenderTemplateRejectsUnresolvedPlaceholder(t *testing.T) {
	_, _, err := renderTemplate(`{"where": {"id": {{missing}}}}`, map[string]interface{}{})
	assert.Error(t, err)
}

func TestRenderTemplateRejectsInvalidJSON(t *testing.T) {
	_, _, err := renderTemplate(`not json at all`, map[string]interface{}{})
	assert.Error(t, err)
}
