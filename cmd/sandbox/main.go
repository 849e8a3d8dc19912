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

// Package main is the entry point for the QueryGate sandbox service.
//
// QueryGate turns natural-language prompts from AI agents into
// validated, rate-limited, audited database queries. Agents never
// touch a database directly; every query passes permission grants,
// schema whitelists, and (optionally) human approval first.
//
// Usage:
//
//	./sandbox
//
// Environment Variables:
//
//	PORT         - HTTP server port (default: 8090)
//	CONFIG_FILE  - path to the YAML configuration file
//	DATABASE_URL - PostgreSQL connection string
//	JWT_SECRET   - secret for bearer token validation
//	REDIS_ADDR   - optional shared rate-limit counter backend
//	LLM_PROVIDER - anthropic or bedrock
package main

import (
	"log"

	"querygate/platform/sandbox"
)

func main() {
	if err := sandbox.Run(); err != nil {
		log.Fatalf("sandbox: %v", err)
	}
}
