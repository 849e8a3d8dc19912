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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounter(client, nil), mr
}

func TestRedisCounterRecordAndCount(t *testing.T) {
	counter, _ := newRedisCounter(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, counter.Record(ctx, "agent-1", "user-1", now.Add(time.Duration(i)*time.Second)))
	}

	n, err := counter.CountSince(ctx, "agent-1", "user-1", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The agent-wide key counts the same submissions.
	n, err = counter.CountSince(ctx, "agent-1", "", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A different user shares the agent scope but not the user scope.
	n, err = counter.CountSince(ctx, "agent-1", "user-2", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisCounterPrunesOldEntries(t *testing.T) {
	counter, _ := newRedisCounter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, counter.Record(ctx, "agent-1", "user-1", now.Add(-25*time.Hour)))
	require.NoError(t, counter.Record(ctx, "agent-1", "user-1", now))

	n, err := counter.CountSince(ctx, "agent-1", "user-1", now.Add(-rateLimitWindow))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisCounterFailsOpenToFallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	counter := NewRedisCounter(client, &fixedCounter{n: 7})
	mr.Close()

	n, err := counter.CountSince(context.Background(), "agent-1", "user-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 7, n, "dead Redis falls back to the store count")
}

func TestRedisCounterCountErrorWithoutFallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	counter := NewRedisCounter(client, nil)
	mr.Close()

	_, err = counter.CountSince(context.Background(), "agent-1", "user-1", time.Now().Add(-time.Hour))
	assert.Error(t, err)
}
