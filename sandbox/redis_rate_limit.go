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
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"querygate/platform/shared/logger"
)

// RedisCounter is a sliding-window usage counter on Redis sorted sets,
// shared across service instances. Each submission adds one member
// scored by its unix-nano timestamp; counting prunes members older than
// the window and reads the cardinality in one pipeline.
//
// Redis failures fail open to the fallback counter: rate limiting
// protects quotas, not integrity, and a dead Redis must not take query
// processing down with it.
type RedisCounter struct {
	client   *redis.Client
	fallback UsageCounter
	log      *logger.Logger
}

// NewRedisCounter creates a counter over the client, falling back to
// counting store records when Redis is unavailable.
func NewRedisCounter(client *redis.Client, fallback UsageCounter) *RedisCounter {
	return &RedisCounter{
		client:   client,
		fallback: fallback,
		log:      logger.New("ratelimit"),
	}
}

func usageKey(agentID, userID string) string {
	if userID == "" {
		return "qg:usage:agent:" + agentID
	}
	return "qg:usage:agent:" + agentID + ":user:" + userID
}

// Record registers one submission at time now. Called when a query
// request is created.
func (c *RedisCounter) Record(ctx context.Context, agentID, userID string, now time.Time) error {
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := c.client.Pipeline()
	for _, key := range recordKeys(agentID, userID) {
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member + ":" + key})
		pipe.Expire(ctx, key, rateLimitWindow+time.Hour)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn(agentID, "", "Redis usage record failed", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// recordKeys writes both the agent-wide and the per-user key so either
// scope can be counted later.
func recordKeys(agentID, userID string) []string {
	keys := []string{usageKey(agentID, "")}
	if userID != "" {
		keys = append(keys, usageKey(agentID, userID))
	}
	return keys
}

// CountSince implements UsageCounter with a prune-then-count pipeline.
func (c *RedisCounter) CountSince(ctx context.Context, agentID, userID string, since time.Time) (int, error) {
	key := usageKey(agentID, userID)
	minScore := strconv.FormatInt(since.UnixNano(), 10)

	pipe := c.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", "("+minScore)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn(agentID, "", "Redis usage count failed, falling back to store", map[string]interface{}{
			"error": err.Error(),
		})
		if c.fallback != nil {
			return c.fallback.CountSince(ctx, agentID, userID, since)
		}
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return int(card.Val()), nil
}
