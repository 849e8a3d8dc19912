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

package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

type fixedCounter struct {
	n   int
	err error
}

func (c *fixedCounter) CountSince(ctx context.Context, agentID, userID string, since time.Time) (int, error) {
	return c.n, c.err
}

func newLimiterFixture(used int, quotas ...int) *RateLimiter {
	store := NewMemoryStore()
	for i, q := range quotas {
		store.AddGrant(types.PermissionGrant{
			ID:               fmt.Sprintf("grant-%d", i),
			AgentID:          "agent-1",
			SchemaMapID:      "sm-crm",
			Level:            types.LevelReadOnly,
			MaxQueriesPerDay: q,
			IsActive:         true,
		})
	}
	rl := NewRateLimiter(store)
	rl.SetCounter(&fixedCounter{n: used})
	return rl
}

func TestRateLimitDeniedAtLimit(t *testing.T) {
	rl := newLimiterFixture(50, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, "Daily query limit reached (50/50)", res.Reason)
	assert.Equal(t, 50, res.Used)
	assert.Equal(t, 50, res.Limit)

	require.NotNil(t, res.Err)
	assert.Equal(t, "agent-1", res.Err.AgentID)
	assert.Equal(t, 50, res.Err.Used)
	assert.Equal(t, 50, res.Err.Limit)
}

func TestRateLimitDeniedOverLimit(t *testing.T) {
	rl := newLimiterFixture(53, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, "Daily query limit reached (53/50)", res.Reason)
}

func TestRateLimitWarnsNearLimit(t *testing.T) {
	rl := newLimiterFixture(42, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "Approaching daily query limit (42/50)", res.Warning)
}

func TestRateLimitWarnsAtExactThreshold(t *testing.T) {
	// 0.8 * 50 = 40, inclusive.
	rl := newLimiterFixture(40, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Equal(t, "Approaching daily query limit (40/50)", res.Warning)
}

func TestRateLimitCleanUnderThreshold(t *testing.T) {
	rl := newLimiterFixture(10, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Empty(t, res.Reason)
	assert.Empty(t, res.Warning)
}

func TestRateLimitMostRestrictiveGrantWins(t *testing.T) {
	rl := newLimiterFixture(60, 100, 50)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	assert.Equal(t, 50, res.Limit)
}

func TestRateLimitUnboundedWithoutQuota(t *testing.T) {
	// A zero quota means the grant does not bound usage at all.
	rl := newLimiterFixture(100000, 0)

	res, err := rl.Check(context.Background(), "agent-1", "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimitCountsFromStore(t *testing.T) {
	store := NewMemoryStore()
	store.AddGrant(types.PermissionGrant{
		ID: "grant-1", AgentID: "agent-1", SchemaMapID: "sm-crm",
		Level: types.LevelReadOnly, MaxQueriesPerDay: 5, IsActive: true,
	})

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		req := &types.QueryRequest{
			ID: "req-" + string(rune('a'+i)), AgentID: "agent-1", UserID: "user-1",
			Status: types.StatusAutoApproved, CreatedAt: now,
		}
		require.NoError(t, store.CreateRequest(ctx, req))
	}
	// Outside the 24h window, must not count.
	old := &types.QueryRequest{
		ID: "req-old", AgentID: "agent-1", UserID: "user-1",
		Status: types.StatusAutoApproved, CreatedAt: now.Add(-25 * time.Hour),
	}
	require.NoError(t, store.CreateRequest(ctx, old))

	rl := NewRateLimiter(store)
	res, err := rl.Check(ctx, "agent-1", "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Used)
}
