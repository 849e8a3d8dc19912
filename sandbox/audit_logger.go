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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// Audit sizing defaults.
const (
	// DefaultMaxPayloadBytes caps serialized params/results in audit
	// entries.
	DefaultMaxPayloadBytes = 4096

	// DefaultSlowThreshold flags executions slower than this.
	DefaultSlowThreshold = 2 * time.Second

	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	auditQueueDepth      = 1000
)

// AuditSink is an append-only writer for audit entries.
type AuditSink interface {
	Write(ctx context.Context, entry *types.AuditLogEntry) error
	Close() error
}

// AuditConfig controls entry construction.
type AuditConfig struct {
	MaxPayloadBytes int
	SlowThreshold   time.Duration
}

func (c AuditConfig) withDefaults() AuditConfig {
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	return c
}

// BuildAuditEntry assembles an entry for one execution attempt, hashing
// truncated params and capping the recorded result size.
func BuildAuditEntry(cfg AuditConfig, req *types.QueryRequest, duration time.Duration, resultSize int, execErr error) *types.AuditLogEntry {
	cfg = cfg.withDefaults()

	entry := &types.AuditLogEntry{
		LogID:      uuid.New().String(),
		Entity:     req.TargetEntity,
		Action:     req.Action,
		DurationMs: duration.Milliseconds(),
		Status:     types.AuditStatusSuccess,
		IsSlow:     duration >= cfg.SlowThreshold,
		ResultSize: resultSize,
		OwnerIDs:   []string{req.AgentID, req.UserID},
		Tags:       []string{"sandbox", string(req.Action)},
		Timestamp:  time.Now().UTC(),
	}

	if params, err := json.Marshal(req.Params); err == nil {
		entry.ParamsDigest = digest(truncate(params, cfg.MaxPayloadBytes))
	}
	if execErr != nil {
		entry.Status = types.AuditStatusError
		entry.ErrorMessage = string(truncate([]byte(execErr.Error()), cfg.MaxPayloadBytes))
	}
	return entry
}

// TruncateResult caps a serialized result to the configured byte limit,
// returning the capped payload and its original size.
func TruncateResult(cfg AuditConfig, result []byte) (json.RawMessage, int) {
	cfg = cfg.withDefaults()
	size := len(result)
	if size <= cfg.MaxPayloadBytes {
		return result, size
	}
	capped, _ := json.Marshal(map[string]interface{}{
		"truncated":      true,
		"original_bytes": size,
	})
	return capped, size
}

func truncate(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// MemorySink retains entries in memory. Tests and development.
type MemorySink struct {
	mu      sync.RWMutex
	entries []types.AuditLogEntry
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements AuditSink.
func (s *MemorySink) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// Close implements AuditSink.
func (s *MemorySink) Close() error { return nil }

// Entries returns a copy of everything written.
func (s *MemorySink) Entries() []types.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.AuditLogEntry(nil), s.entries...)
}

// BatchSink buffers audit entries and writes them to PostgreSQL in
// batches, flushing on size or interval. Entries are enqueued without
// blocking the execution path; a full queue drops the entry and logs,
// which is preferable to stalling query execution on audit I/O.
type BatchSink struct {
	db            *sql.DB
	entries       chan *types.AuditLogEntry
	batchSize     int
	flushInterval time.Duration
	log           *logger.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewBatchSink creates the sink, ensures the audit table exists, and
// starts the background writer.
func NewBatchSink(db *sql.DB) (*BatchSink, error) {
	if err := createAuditTable(db); err != nil {
		return nil, err
	}

	s := &BatchSink{
		db:            db,
		entries:       make(chan *types.AuditLogEntry, auditQueueDepth),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		log:           logger.New("audit"),
		stopCh:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func createAuditTable(db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_log_entries (
			log_id        UUID PRIMARY KEY,
			entity        TEXT NOT NULL,
			action        TEXT NOT NULL,
			params_digest TEXT,
			duration_ms   BIGINT NOT NULL,
			status        TEXT NOT NULL,
			is_slow       BOOLEAN NOT NULL DEFAULT FALSE,
			result_size   INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			tags          TEXT[],
			owner_ids     TEXT[],
			timestamp     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_log_entries (timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_log_entries (entity, action);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Write implements AuditSink. Non-blocking.
func (s *BatchSink) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	select {
	case s.entries <- entry:
		return nil
	default:
		s.log.Error("", "", "Audit queue full, dropping entry", map[string]interface{}{
			"log_id": entry.LogID,
			"entity": entry.Entity,
		})
		return fmt.Errorf("audit queue full")
	}
}

// Close drains pending entries and stops the writer.
func (s *BatchSink) Close() error {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}

func (s *BatchSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*types.AuditLogEntry, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writeBatch(batch); err != nil {
			s.log.Error("", "", "Audit batch write failed", map[string]interface{}{
				"count": len(batch),
				"error": err.Error(),
			})
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entries:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			// Drain whatever is queued before exiting.
			for {
				select {
				case entry := <-s.entries:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *BatchSink) writeBatch(batch []*types.AuditLogEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO audit_log_entries
			(log_id, entity, action, params_digest, duration_ms, status, is_slow, result_size, error_message, tags, owner_ids, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range batch {
		if _, err := stmt.Exec(
			e.LogID, e.Entity, string(e.Action), e.ParamsDigest, e.DurationMs,
			e.Status, e.IsSlow, e.ResultSize, e.ErrorMessage,
			pq.Array(e.Tags), pq.Array(e.OwnerIDs), e.Timestamp,
		); err != nil {
			return fmt.Errorf("insert %s: %w", e.LogID, err)
		}
	}
	return tx.Commit()
}
