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

package llm

import (
	"fmt"
	"sync"
)

// ProviderFactory creates a Provider instance from configuration.
// Factories should validate the config and return an error if invalid.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// factoryRegistry holds registered provider factories.
// Thread-safe for concurrent access.
type factoryRegistry struct {
	factories map[ProviderType]ProviderFactory
	mu        sync.RWMutex
}

var globalRegistry = &factoryRegistry{
	factories: make(map[ProviderType]ProviderFactory),
}

// RegisterFactory registers a factory function for a provider type.
// Provider packages call this from init(); importing a provider package
// makes its type available here. A later registration for the same type
// overwrites the earlier one.
func RegisterFactory(providerType ProviderType, factory ProviderFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.factories[providerType] = factory
}

// HasFactory returns true if a factory is registered for the provider type.
func HasFactory(providerType ProviderType) bool {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	_, ok := globalRegistry.factories[providerType]
	return ok
}

// ListFactories returns all registered provider types.
func ListFactories() []ProviderType {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	out := make([]ProviderType, 0, len(globalRegistry.factories))
	for t := range globalRegistry.factories {
		out = append(out, t)
	}
	return out
}

// NewProvider creates a provider instance from configuration using the
// registered factory for its type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	globalRegistry.mu.RLock()
	factory, ok := globalRegistry.factories[cfg.Type]
	globalRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory registered for provider type %q", cfg.Type)
	}
	return factory(cfg)
}
