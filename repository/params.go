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
	"regexp"
	"sort"
)

// Params keys shared by all backends. The translator emits this shape
// and the validator checks field names against the schema map before a
// repository ever sees them.
const (
	ParamWhere   = "where"
	ParamSelect  = "select"
	ParamTake    = "take"
	ParamData    = "data"
	ParamOrderBy = "orderBy"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to use as a column, table,
// collection, or field name. Backends reject anything else even though
// the validator should have caught it first.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Where extracts the equality filter map from params. Missing or nil
// means no filter.
func Where(params map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := params[ParamWhere]
	if !ok || raw == nil {
		return nil, nil
	}
	where, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("where must be an object")
	}
	for field := range where {
		if !ValidIdentifier(field) {
			return nil, fmt.Errorf("invalid field name %q", field)
		}
	}
	return where, nil
}

// Select extracts the projected field list from params.
func Select(params map[string]interface{}) ([]string, error) {
	raw, ok := params[ParamSelect]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("select must be an array of field names")
	}
	fields := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok || !ValidIdentifier(name) {
			return nil, fmt.Errorf("invalid select field %v", item)
		}
		fields = append(fields, name)
	}
	return fields, nil
}

// Take extracts the result-size limit from params. 0 means unlimited.
func Take(params map[string]interface{}) (int, error) {
	raw, ok := params[ParamTake]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, fmt.Errorf("take must be a non-negative integer")
		}
		return int(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("take must be a non-negative integer")
		}
		return v, nil
	default:
		return 0, fmt.Errorf("take must be a number")
	}
}

// Data extracts the create/update value map from params.
func Data(params map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := params[ParamData]
	if !ok || raw == nil {
		return nil, fmt.Errorf("data is required for write actions")
	}
	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("data must be an object")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("data must not be empty")
	}
	for field := range data {
		if !ValidIdentifier(field) {
			return nil, fmt.Errorf("invalid field name %q", field)
		}
	}
	return data, nil
}

// sortedKeys returns map keys in deterministic order so generated
// statements are stable across runs.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
