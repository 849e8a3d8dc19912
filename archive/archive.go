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

// Package archive ships audit entries to object storage for long-term
// retention. The hot audit trail lives in PostgreSQL; these sinks add a
// write-once copy in S3, GCS, or Azure Blob, one JSON object per entry,
// keyed by date so retention policies can expire whole prefixes.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"querygate/platform/shared/logger"
	"querygate/platform/shared/types"
)

// ObjectStore is the minimal surface a storage backend must provide.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Sink writes audit entries to an ObjectStore. It implements the audit
// sink contract so it can stand in for, or fan out alongside, the
// database sink.
type Sink struct {
	store  ObjectStore
	prefix string
	log    *logger.Logger
}

// NewSink creates a Sink writing under the given key prefix.
func NewSink(store ObjectStore, prefix string) *Sink {
	return &Sink{store: store, prefix: prefix, log: logger.New("archive")}
}

// Write stores one entry. The object key is derived from the entry's
// timestamp and log ID, so retries overwrite rather than duplicate.
func (s *Sink) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry %s: %w", entry.LogID, err)
	}
	key := entryKey(s.prefix, entry)
	if err := s.store.Put(ctx, key, data); err != nil {
		s.log.Error("", "", "Archive write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying store.
func (s *Sink) Close() error {
	return s.store.Close()
}

func entryKey(prefix string, entry *types.AuditLogEntry) string {
	return path.Join(prefix, entry.Timestamp.UTC().Format("2006/01/02"), entry.LogID+".json")
}

// Fanout duplicates writes across sinks, typically the database batch
// sink plus an object-store archive. Write returns the first error but
// still attempts every sink.
type Fanout struct {
	sinks []AuditSink
}

// AuditSink mirrors the sandbox audit sink contract. Declared here so
// the package has no dependency on its consumers.
type AuditSink interface {
	Write(ctx context.Context, entry *types.AuditLogEntry) error
	Close() error
}

// NewFanout builds a fanout over the given sinks.
func NewFanout(sinks ...AuditSink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Write implements AuditSink.
func (f *Fanout) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Write(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements AuditSink.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
