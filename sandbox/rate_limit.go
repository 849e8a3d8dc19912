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

// rateLimitWindow is the rolling window for daily quotas.
const rateLimitWindow = 24 * time.Hour

// warnFraction of the limit at which a warning is attached.
const warnFraction = 0.8

// UsageCounter counts query submissions in a time window. The default
// implementation counts request records in the store; a Redis-backed
// counter can replace it for multi-instance deployments.
type UsageCounter interface {
	CountSince(ctx context.Context, agentID, userID string, since time.Time) (int, error)
}

// storeCounter counts persisted query requests.
type storeCounter struct {
	store Store
}

func (c *storeCounter) CountSince(ctx context.Context, agentID, userID string, since time.Time) (int, error) {
	return c.store.CountRequestsSince(ctx, agentID, userID, since)
}

// RateLimitResult is the limiter's decision.
type RateLimitResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
	Used    int    `json:"used"`
	Limit   int    `json:"limit"`

	// Err carries the typed denial with remaining-quota context.
	Err *types.RateLimitError `json:"-"`
}

// RateLimiter bounds per-agent query volume over a rolling day window.
// The check-then-act pattern is a soft limit: two concurrent executions
// near the boundary can overshoot by one in-flight request, which is
// accepted rather than paying for a distributed lock.
type RateLimiter struct {
	store   Store
	counter UsageCounter
	log     *logger.Logger
}

// NewRateLimiter creates a limiter counting usage from the store.
func NewRateLimiter(store Store) *RateLimiter {
	return &RateLimiter{
		store:   store,
		counter: &storeCounter{store: store},
		log:     logger.New("ratelimit"),
	}
}

// SetCounter replaces the usage counter, e.g. with the Redis sliding
// window for multi-instance deployments.
func (rl *RateLimiter) SetCounter(counter UsageCounter) {
	rl.counter = counter
}

// Check evaluates the agent's rolling 24h usage against the most
// restrictive quota across its active grants.
func (rl *RateLimiter) Check(ctx context.Context, agentID, userID string) (*RateLimitResult, error) {
	return rl.check(ctx, agentID, userID, 0)
}

// CheckExisting re-evaluates the limit immediately before executing an
// already persisted request, closing the gap between submission and a
// delayed approval. The request's own record is already in the count
// and is discounted so it cannot deny itself.
func (rl *RateLimiter) CheckExisting(ctx context.Context, agentID, userID string) (*RateLimitResult, error) {
	return rl.check(ctx, agentID, userID, 1)
}

func (rl *RateLimiter) check(ctx context.Context, agentID, userID string, discount int) (*RateLimitResult, error) {
	grants, err := rl.store.ActiveGrants(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load grants for %s: %w", agentID, err)
	}

	// Most restrictive quota wins. Grants without a quota do not bound.
	limit := 0
	for _, g := range grants {
		if g.MaxQueriesPerDay <= 0 {
			continue
		}
		if limit == 0 || g.MaxQueriesPerDay < limit {
			limit = g.MaxQueriesPerDay
		}
	}
	if limit == 0 {
		return &RateLimitResult{Allowed: true}, nil
	}

	since := time.Now().Add(-rateLimitWindow)
	used, err := rl.counter.CountSince(ctx, agentID, userID, since)
	if err != nil {
		return nil, fmt.Errorf("count usage for %s: %w", agentID, err)
	}
	used -= discount
	if used < 0 {
		used = 0
	}

	result := &RateLimitResult{Used: used, Limit: limit}
	switch {
	case used >= limit:
		result.Err = &types.RateLimitError{AgentID: agentID, Used: used, Limit: limit}
		result.Reason = result.Err.Error()
		rl.log.Warn(agentID, "", "Rate limit denied", map[string]interface{}{
			"used": used, "limit": limit,
		})
	case float64(used) >= warnFraction*float64(limit):
		result.Allowed = true
		result.Warning = fmt.Sprintf("Approaching daily query limit (%d/%d)", used, limit)
	default:
		result.Allowed = true
	}
	return result, nil
}
