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

package anthropic

import (
	"time"

	"querygate/platform/llm"
)

func init() {
	llm.RegisterFactory(llm.ProviderTypeAnthropic, FromConfig)
}

// FromConfig builds an Anthropic provider from the generic provider config.
func FromConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	name := cfg.Name
	if name == "" {
		name = string(llm.ProviderTypeAnthropic)
	}
	var timeout time.Duration
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return New(name, Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: timeout,
	})
}
