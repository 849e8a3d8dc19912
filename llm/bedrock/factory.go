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

package bedrock

import (
	"context"

	"querygate/platform/llm"
)

func init() {
	llm.RegisterFactory(llm.ProviderTypeBedrock, FromConfig)
}

// FromConfig builds a Bedrock provider from the generic provider config.
// AWS credential loading uses the background context; provider creation
// happens once at startup.
func FromConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	name := cfg.Name
	if name == "" {
		name = string(llm.ProviderTypeBedrock)
	}
	return New(context.Background(), name, cfg.Region, cfg.Model)
}
