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

package types

import (
	"fmt"
	"strings"
)

// TranslationError indicates a prompt could not be mapped to a safe
// structured query. It is never retried automatically; the caller must
// revise the prompt and submit again.
type TranslationError struct {
	Prompt string
	Reason string
	Cause  error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("translation failed: %s (cause: %v)", e.Reason, e.Cause)
	}
	return fmt.Sprintf("translation failed: %s", e.Reason)
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// NewTranslationError creates a TranslationError.
func NewTranslationError(prompt, reason string, cause error) *TranslationError {
	return &TranslationError{Prompt: prompt, Reason: reason, Cause: cause}
}

// ValidationError indicates an authorization or schema violation. The
// request never reaches execution; Reasons is surfaced to the caller as a
// list of human-readable messages.
type ValidationError struct {
	Entity  string
	Action  Action
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s.%s: %s", e.Entity, e.Action, strings.Join(e.Reasons, "; "))
}

// RateLimitError indicates the daily quota is exhausted. Used and Limit
// provide remaining-quota context to the caller.
type RateLimitError struct {
	AgentID string
	Used    int
	Limit   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Daily query limit reached (%d/%d)", e.Used, e.Limit)
}

// ExecutionError indicates an underlying repository failure. The message is
// opaque to callers so internal store errors do not leak; the cause is
// retained for the audit trail.
type ExecutionError struct {
	RequestID string
	Message   string
	Cause     error
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "query execution failed"
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
