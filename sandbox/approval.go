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
	"time"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// ErrNotPending is returned when a decision targets a request that has
// already left the PENDING state.
var ErrNotPending = fmt.Errorf("request is not pending")

// Approvals governs the human decision step of the request lifecycle.
// PENDING is the only state a decision may act on; APPROVED, REJECTED,
// and executed requests never transition again.
type Approvals struct {
	store Store
	log   *logger.Logger
}

// NewApprovals creates the approval state machine over the store.
func NewApprovals(store Store) *Approvals {
	return &Approvals{store: store, log: logger.New("approvals")}
}

// Decide applies a human decision to a pending request. Approval
// records who approved; rejection records why. The updated request is
// returned.
func (a *Approvals) Decide(ctx context.Context, requestID string, approved bool, decidedBy, rejectionReason string) (*types.QueryRequest, error) {
	req, err := a.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	if req.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: request %s is %s", ErrNotPending, requestID, req.Status)
	}

	now := time.Now().UTC()
	if approved {
		req.Status = types.StatusApproved
		req.ApprovedBy = decidedBy
	} else {
		req.Status = types.StatusRejected
		if rejectionReason == "" {
			rejectionReason = "rejected without reason"
		}
		req.RejectionReason = rejectionReason
	}
	req.UpdatedAt = now

	if err := a.store.UpdateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("update request %s: %w", requestID, err)
	}

	a.log.Info(req.AgentID, req.ID, "Approval decision recorded", map[string]interface{}{
		"approved":   approved,
		"decided_by": decidedBy,
	})
	return req, nil
}

// Pending lists requests awaiting a decision, newest first.
func (a *Approvals) Pending(ctx context.Context, limit int) ([]types.QueryRequest, error) {
	return a.store.ListRequests(ctx, RequestFilter{Status: types.StatusPending, Limit: limit})
}
