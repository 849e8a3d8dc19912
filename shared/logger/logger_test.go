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

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "sandbox",
			instanceID:     "instance-123",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "translator",
			instanceID:     "",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				if err := os.Setenv("INSTANCE_ID", tt.instanceID); err != nil {
					t.Fatalf("Failed to set INSTANCE_ID: %v", err)
				}
				defer func() { _ = os.Unsetenv("INSTANCE_ID") }()
			} else {
				_ = os.Unsetenv("INSTANCE_ID")
			}

			l := New(tt.component)

			if l.Component != tt.component {
				t.Errorf("Component = %q, want %q", l.Component, tt.component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("InstanceID = %q, want %q", l.InstanceID, tt.expectedInstID)
			}
			if l.Container == "" {
				t.Error("Container should never be empty")
			}
		})
	}
}

// TestLogOutput verifies log entries are valid single-line JSON with the
// expected fields.
func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	}()

	l := New("sandbox")
	l.Info("agent-1", "qr-42", "Validating query", map[string]interface{}{
		"entity": "User",
	})

	line := strings.TrimSpace(buf.String())
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v\noutput: %s", err, line)
	}

	if entry.Level != INFO {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want agent-1", entry.AgentID)
	}
	if entry.RequestID != "qr-42" {
		t.Errorf("RequestID = %q, want qr-42", entry.RequestID)
	}
	if entry.Fields["entity"] != "User" {
		t.Errorf("Fields[entity] = %v, want User", entry.Fields["entity"])
	}
}

// TestErrorWithCode verifies status code and error fields are attached.
func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	}()

	l := New("executor")
	l.ErrorWithCode("agent-1", "qr-42", "Execution failed", 500, os.ErrDeadlineExceeded, nil)

	line := strings.TrimSpace(buf.String())
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry.Level != ERROR {
		t.Errorf("Level = %q, want ERROR", entry.Level)
	}
	if entry.Fields["status_code"] != float64(500) {
		t.Errorf("status_code = %v, want 500", entry.Fields["status_code"])
	}
	if entry.Fields["error"] == "" {
		t.Error("error field should be populated")
	}
}
