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

/*
Package logger provides structured JSON logging for QueryGate components.

# Overview

The logger outputs single-line JSON to stdout, making logs consumable by
CloudWatch, ELK, or any other aggregation system without extra parsing.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (sandbox, translator, executor, ...)
  - Instance ID and container name (for distributed tracing)
  - Agent ID (for per-agent audit correlation)
  - Request ID (for query request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("sandbox")

Log messages with agent and request context:

	log.Info("agent-123", "qr-456", "Validating query", map[string]interface{}{
	    "entity": "User",
	    "action": "findMany",
	})

Log errors with status codes:

	log.ErrorWithCode("agent-123", "qr-456", "Execution failed", 500, err, nil)

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
