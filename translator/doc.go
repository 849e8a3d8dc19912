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
Package translator converts natural-language prompts into candidate
structured queries.

Two strategies are tried in order:

 1. Template match: scan the caller's pre-vetted query templates, extract
    parameters from the prompt text with pattern matching, and render the
    template. A matched template carries its auto-approval flag.
 2. Generative fallback: embed the serialized schema map in a system
    instruction and ask the completion provider for a strict JSON object.
    The response is untrusted input; only the first balanced JSON object
    is extracted, and any entity or action outside the supplied schema is
    rejected.

Translation is a pure function over its inputs plus at most one provider
call. Provider errors and malformed output surface as
types.TranslationError and are never retried.
*/
package translator
