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
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/platform/shared/types"
)

func auditRequest() *types.QueryRequest {
	return &types.QueryRequest{
		ID:           "req-1",
		AgentID:      "agent-1",
		UserID:       "user-1",
		TargetEntity: "User",
		Action:       types.ActionFindMany,
		Params:       map[string]interface{}{"where": map[string]interface{}{"isActive": true}},
		Status:       types.StatusApproved,
	}
}

func TestBuildAuditEntrySuccess(t *testing.T) {
	entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 120*time.Millisecond, 256, nil)

	assert.NotEmpty(t, entry.LogID)
	assert.Equal(t, "User", entry.Entity)
	assert.Equal(t, types.ActionFindMany, entry.Action)
	assert.Equal(t, int64(120), entry.DurationMs)
	assert.Equal(t, types.AuditStatusSuccess, entry.Status)
	assert.False(t, entry.IsSlow)
	assert.Equal(t, 256, entry.ResultSize)
	assert.Equal(t, []string{"agent-1", "user-1"}, entry.OwnerIDs)
	assert.Equal(t, []string{"sandbox", "findMany"}, entry.Tags)
	assert.Len(t, entry.ParamsDigest, 64, "sha256 hex digest")
	assert.Empty(t, entry.ErrorMessage)
}

func TestBuildAuditEntryMarksSlow(t *testing.T) {
	entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 3*time.Second, 0, nil)
	assert.True(t, entry.IsSlow)

	entry = BuildAuditEntry(AuditConfig{SlowThreshold: 5 * time.Second}, auditRequest(), 3*time.Second, 0, nil)
	assert.False(t, entry.IsSlow)
}

func TestBuildAuditEntryError(t *testing.T) {
	entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 10*time.Millisecond, 0, fmt.Errorf("pq: relation does not exist"))

	assert.Equal(t, types.AuditStatusError, entry.Status)
	assert.Equal(t, "pq: relation does not exist", entry.ErrorMessage)
}

func TestBuildAuditEntryTruncatesLongError(t *testing.T) {
	long := strings.Repeat("x", 2*DefaultMaxPayloadBytes)
	entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 0, 0, fmt.Errorf("%s", long))
	assert.Len(t, entry.ErrorMessage, DefaultMaxPayloadBytes)
}

func TestTruncateResult(t *testing.T) {
	small := []byte(`{"rows":[]}`)
	capped, size := TruncateResult(AuditConfig{}, small)
	assert.Equal(t, json.RawMessage(small), capped)
	assert.Equal(t, len(small), size)

	large := []byte(`{"rows":"` + strings.Repeat("a", DefaultMaxPayloadBytes) + `"}`)
	capped, size = TruncateResult(AuditConfig{}, large)
	assert.Equal(t, len(large), size)

	var marker map[string]interface{}
	require.NoError(t, json.Unmarshal(capped, &marker))
	assert.Equal(t, true, marker["truncated"])
	assert.Equal(t, float64(len(large)), marker["original_bytes"])
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 0, 0, nil)
		require.NoError(t, sink.Write(ctx, entry))
	}
	assert.Len(t, sink.Entries(), 3)
	require.NoError(t, sink.Close())
}

func TestBatchSinkWritesOnClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewBatchSink(db)
	require.NoError(t, err)

	entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 50*time.Millisecond, 128, nil)

	mock.ExpectBegin()
	prepared := mock.ExpectPrepare("INSERT INTO audit_log_entries")
	prepared.ExpectExec().
		WithArgs(
			entry.LogID, entry.Entity, string(entry.Action), entry.ParamsDigest,
			entry.DurationMs, entry.Status, entry.IsSlow, entry.ResultSize,
			entry.ErrorMessage, sqlmock.AnyArg(), sqlmock.AnyArg(), entry.Timestamp,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Write(context.Background(), entry))
	require.NoError(t, sink.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchSinkRejectsWhenQueueFull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewBatchSink(db)
	require.NoError(t, err)

	// Stop the writer first so nothing drains the queue, then fill it.
	require.NoError(t, sink.Close())

	var writeErr error
	for i := 0; i <= auditQueueDepth; i++ {
		entry := BuildAuditEntry(AuditConfig{}, auditRequest(), 0, 0, nil)
		if writeErr = sink.Write(context.Background(), entry); writeErr != nil {
			break
		}
	}
	require.Error(t, writeErr)
	assert.Contains(t, writeErr.Error(), "queue full")
}
