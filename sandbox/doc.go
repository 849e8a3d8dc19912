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
Package sandbox is the authorization and execution gate between an
agent's generated queries and live data.

A prompt submission flows through:

  1. Rate limiter: rolling 24h usage against the most restrictive quota
     across the agent's active grants.
  2. Prompt translator (package translator): template match or
     generative fallback.
  3. Query validator: at least one active grant must fully authorize the
     (entity, action) pair, and every referenced field must satisfy the
     grant's schema map. Strict mode blocks on type violations;
     permissive mode demotes them to warnings.
  4. Approval state machine: PENDING for human decision, AUTO_APPROVED
     when the authorizing grant permits it.
  5. Executor: re-validates, re-checks the rate limit, dispatches
     through the fixed repository registry, and writes the audit entry.

The validator is the only gate between LLM output and a live data
mutation; everything it passes is still re-checked at execution time
because permissions can change between submission and a delayed
approval.
*/
package sandbox
