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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

func pendingRequest(id string) *types.QueryRequest {
	now := time.Now().UTC()
	return &types.QueryRequest{
		ID:           id,
		AgentID:      "agent-1",
		UserID:       "user-1",
		Prompt:       "count orders",
		TargetEntity: "Order",
		Action:       types.ActionCount,
		Status:       types.StatusPending,
		SandboxMode:  types.ModeStrict,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDecideApprove(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, pendingRequest("req-1")))

	a := NewApprovals(store)
	req, err := a.Decide(ctx, "req-1", true, "ops@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, types.StatusApproved, req.Status)
	assert.Equal(t, "ops@example.com", req.ApprovedBy)

	stored, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, stored.Status)
}

func TestDecideReject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, pendingRequest("req-1")))

	a := NewApprovals(store)
	req, err := a.Decide(ctx, "req-1", false, "ops@example.com", "too broad")
	require.NoError(t, err)

	assert.Equal(t, types.StatusRejected, req.Status)
	assert.Equal(t, "too broad", req.RejectionReason)
	assert.Empty(t, req.ApprovedBy)
}

func TestDecideRejectDefaultReason(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRequest(ctx, pendingRequest("req-1")))

	a := NewApprovals(store)
	req, err := a.Decide(ctx, "req-1", false, "ops@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "rejected without reason", req.RejectionReason)
}

func TestDecideOnlyActsOnPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := NewApprovals(store)

	for _, status := range []types.RequestStatus{
		types.StatusApproved, types.StatusAutoApproved, types.StatusRejected,
	} {
		req := pendingRequest("req-" + string(status))
		req.Status = status
		require.NoError(t, store.CreateRequest(ctx, req))

		_, err := a.Decide(ctx, req.ID, true, "ops@example.com", "")
		assert.ErrorIs(t, err, ErrNotPending, "decision on %s must be refused", status)

		// No transition happened.
		stored, gerr := store.GetRequest(ctx, req.ID)
		require.NoError(t, gerr)
		assert.Equal(t, status, stored.Status)
	}
}

func TestDecideMissingRequest(t *testing.T) {
	a := NewApprovals(NewMemoryStore())
	_, err := a.Decide(context.Background(), "missing", true, "ops@example.com", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPendingListsOnlyPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRequest(ctx, pendingRequest("req-1")))
	approved := pendingRequest("req-2")
	approved.Status = types.StatusApproved
	require.NoError(t, store.CreateRequest(ctx, approved))

	a := NewApprovals(store)
	pending, err := a.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)
}
