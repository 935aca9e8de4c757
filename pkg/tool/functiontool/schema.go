// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// reflector inlines every definition and takes required fields from
// jsonschema tags rather than from missing omitempty.
var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// Schema returns the JSON schema of T as the flat object tools advertise:
// type, properties, required and additionalProperties, nothing else.
//
//	type Args struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
//	}
func Schema[T any]() (map[string]any, error) {
	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	if full["type"] != "object" {
		delete(full, "$schema")
		delete(full, "$id")
		return full, nil
	}

	out := map[string]any{"type": "object", "properties": full["properties"]}
	for _, key := range []string{"required", "additionalProperties"} {
		if v, ok := full[key]; ok && v != nil {
			out[key] = v
		}
	}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	return out, nil
}
