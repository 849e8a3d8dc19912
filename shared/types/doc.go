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
Package types provides the shared domain model used across QueryGate
components.

# Overview

This package contains the declarative authorization model (schema maps and
permission grants), the query request lifecycle types, pre-vetted query
templates, and the audit log record. It is the single source of truth for
data structures shared between the sandbox service, the prompt translator,
and the entity repositories.

# Authorization Model

A SchemaMap is a whitelist of entities, the actions permitted on each, the
fields that may be referenced, and their declared types. An entity absent
from a schema map is implicitly forbidden.

A PermissionGrant binds an agent to a schema map with a permission level,
an optional entity/action whitelist, a daily query quota, and an approval
requirement. An agent may hold several active grants; a query is authorized
when at least one grant fully covers the (entity, action) pair.

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
