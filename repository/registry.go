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

package repository

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps entity names to repositories. The map is fixed at
// startup: lookups of unregistered entities fail closed with an error
// rather than falling through to any dynamic dispatch.
type Registry struct {
	mu    sync.RWMutex
	repos map[string]Repository
}

// NewRegistry creates a registry from the given repositories.
// Registering two repositories for the same entity is a configuration
// bug and returns an error.
func NewRegistry(repos ...Repository) (*Registry, error) {
	r := &Registry{repos: make(map[string]Repository, len(repos))}
	for _, repo := range repos {
		entity := repo.Entity()
		if entity == "" {
			return nil, fmt.Errorf("repository with empty entity name")
		}
		if _, exists := r.repos[entity]; exists {
			return nil, fmt.Errorf("duplicate repository for entity %q", entity)
		}
		r.repos[entity] = repo
	}
	return r, nil
}

// Lookup returns the repository for an entity. Unknown entities are an
// error, never a nil pass-through.
func (r *Registry) Lookup(entity string) (Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.repos[entity]
	if !ok {
		return nil, fmt.Errorf("no repository registered for entity %q", entity)
	}
	return repo, nil
}

// Entities returns the sorted list of registered entity names.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.repos))
	for name := range r.repos {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
