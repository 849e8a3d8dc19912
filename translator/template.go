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

package translator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"querygate/platform/shared/types"
)

// Minimum fraction of a template's name tokens that must appear in the
// prompt for the template to be considered a match.
const matchThreshold = 0.6

var (
	numberPattern     = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	quotedPattern     = regexp.MustCompile(`["']([^"']+)["']`)
	isoDatePattern    = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})(T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})?)?\b`)
	lastNDaysPattern  = regexp.MustCompile(`\blast\s+(\d+)\s+days?\b`)
	identifierPattern = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9_-]{7,}\b`)
)

var stopwords = map[string]bool{
	"a": true, "all": true, "an": true, "and": true, "by": true, "for": true,
	"from": true, "in": true, "me": true, "of": true, "on": true, "show": true,
	"the": true, "to": true, "with": true,
}

// matchTemplate attempts to match the prompt against one template. It
// returns nil when the template's name does not sufficiently overlap the
// prompt or a required parameter cannot be extracted.
func matchTemplate(prompt string, tmpl types.QueryTemplate) (*types.StructuredQuery, error) {
	if !tmpl.IsActive {
		return nil, nil
	}

	lower := strings.ToLower(prompt)
	if score := nameOverlap(lower, tmpl.Name); score < matchThreshold {
		return nil, nil
	}

	extracted := make(map[string]interface{}, len(tmpl.ParameterSchema))
	for _, param := range tmpl.ParameterSchema {
		value, ok := extractParameter(prompt, param)
		if !ok {
			if param.Default != nil {
				extracted[param.Name] = param.Default
				continue
			}
			if param.Required {
				return nil, nil
			}
			continue
		}
		extracted[param.Name] = value
	}

	queryText, params, err := renderTemplate(tmpl.TemplateText, extracted)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tmpl.ID, err)
	}

	return &types.StructuredQuery{
		TargetEntity: tmpl.TargetEntity,
		Action:       tmpl.Action,
		Params:       params,
		QueryText:    queryText,
		TemplateID:   tmpl.ID,
	}, nil
}

// nameOverlap scores how many non-stopword tokens of the template name
// appear in the lowercased prompt.
func nameOverlap(lowerPrompt, name string) float64 {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})

	total, matched := 0, 0
	for _, tok := range tokens {
		if stopwords[tok] {
			continue
		}
		total++
		if strings.Contains(lowerPrompt, tok) || strings.Contains(lowerPrompt, singular(tok)) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

func singular(tok string) string {
	return strings.TrimSuffix(tok, "s")
}

// extractParameter pulls a typed value for one parameter out of the prompt
// text. A Validation regex, when present, takes precedence over the
// per-type heuristics; its first capture group (or whole match) is used.
func extractParameter(prompt string, param types.TemplateParameter) (interface{}, bool) {
	if param.Validation != "" {
		re, err := regexp.Compile(param.Validation)
		if err != nil {
			return nil, false
		}
		m := re.FindStringSubmatch(prompt)
		if m == nil {
			return nil, false
		}
		raw := m[0]
		if len(m) > 1 && m[1] != "" {
			raw = m[1]
		}
		return coerce(raw, param.Type)
	}

	lower := strings.ToLower(prompt)
	switch param.Type {
	case types.FieldTypeInt:
		if m := numberPattern.FindString(prompt); m != "" && !strings.Contains(m, ".") {
			n, err := strconv.Atoi(m)
			if err == nil {
				return n, true
			}
		}
	case types.FieldTypeFloat:
		if m := numberPattern.FindString(prompt); m != "" {
			f, err := strconv.ParseFloat(m, 64)
			if err == nil {
				return f, true
			}
		}
	case types.FieldTypeBoolean:
		switch {
		case strings.Contains(lower, "inactive") || strings.Contains(lower, "disabled") || strings.Contains(lower, "false"):
			return false, true
		case strings.Contains(lower, "active") || strings.Contains(lower, "enabled") || strings.Contains(lower, "true"):
			return true, true
		}
	case types.FieldTypeDateTime:
		if m := isoDatePattern.FindString(prompt); m != "" {
			if len(m) == len("2006-01-02") {
				m += "T00:00:00Z"
			}
			return m, true
		}
		if m := lastNDaysPattern.FindStringSubmatch(lower); m != nil {
			days, err := strconv.Atoi(m[1])
			if err == nil {
				return time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339), true
			}
		}
		if strings.Contains(lower, "yesterday") {
			return time.Now().UTC().AddDate(0, 0, -1).Format(time.RFC3339), true
		}
		if strings.Contains(lower, "today") {
			y, mo, d := time.Now().UTC().Date()
			return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), true
		}
	default:
		// String-like parameters: prefer an explicit quoted value, then a
		// long identifier token (IDs, emails, SKUs).
		if m := quotedPattern.FindStringSubmatch(prompt); m != nil {
			return m[1], true
		}
		if m := identifierPattern.FindString(prompt); m != "" {
			return m, true
		}
	}

	return nil, false
}

func coerce(raw string, t types.FieldType) (interface{}, bool) {
	switch t {
	case types.FieldTypeInt:
		n, err := strconv.Atoi(raw)
		return n, err == nil
	case types.FieldTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		return f, err == nil
	case types.FieldTypeBoolean:
		b, err := strconv.ParseBool(raw)
		return b, err == nil
	default:
		return raw, true
	}
}

// renderTemplate substitutes {{name}} placeholders with JSON-encoded
// parameter values. The rendered text must itself be a JSON params
// document; it is parsed back into the params map so that downstream
// field validation sees exactly what will execute.
func renderTemplate(templateText string, values map[string]interface{}) (string, map[string]interface{}, error) {
	rendered := templateText
	for name, value := range values {
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("encode parameter %s: %w", name, err)
		}
		rendered = strings.ReplaceAll(rendered, "{{"+name+"}}", string(encoded))
	}

	if strings.Contains(rendered, "{{") {
		return "", nil, fmt.Errorf("unresolved placeholder in template")
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(rendered), &params); err != nil {
		return "", nil, fmt.Errorf("rendered template is not valid JSON: %w", err)
	}
	return rendered, params, nil
}
