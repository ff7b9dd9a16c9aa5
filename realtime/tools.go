// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// FilterProductsToolName is the single function the remote agent may call.
const FilterProductsToolName = "filter_products"

// FilterArguments are the decoded arguments of a filter_products call,
// surfaced to the display layer as the structured shopping intent.
type FilterArguments struct {
	Category string  `json:"category" jsonschema:"description=Product category such as shoes or shirts"`
	Color    string  `json:"color,omitempty" jsonschema:"description=Product color such as red or blue"`
	MaxPrice float64 `json:"max_price,omitempty" jsonschema:"description=Maximum price in USD"`
}

// ToolDefinition declares a function the client can fulfill, with the JSON
// schema of its parameters as advertised to the remote agent.
type ToolDefinition struct {
	Name             string
	Description      string
	ParamsJSONSchema map[string]any
}

var (
	filterToolOnce   sync.Once
	filterToolDef    ToolDefinition
	filterToolSchema *gojsonschema.Schema
	filterToolErr    error
)

func initFilterTool() {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	reflected := reflector.Reflect(&FilterArguments{})
	reflected.Version = ""

	raw, err := json.Marshal(reflected)
	if err != nil {
		filterToolErr = fmt.Errorf("error marshaling filter_products schema: %w", err)
		return
	}

	var schemaMap map[string]any
	if err = json.Unmarshal(raw, &schemaMap); err != nil {
		filterToolErr = fmt.Errorf("error unmarshaling filter_products schema: %w", err)
		return
	}

	filterToolDef = ToolDefinition{
		Name:             FilterProductsToolName,
		Description:      "Filters products in an online store based on user criteria.",
		ParamsJSONSchema: schemaMap,
	}

	filterToolSchema, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		filterToolErr = fmt.Errorf("error compiling filter_products schema: %w", err)
	}
}

// FilterProductsTool returns the statically-declared filter_products tool.
func FilterProductsTool() (ToolDefinition, error) {
	filterToolOnce.Do(initFilterTool)
	return filterToolDef, filterToolErr
}

// DecodeFilterArguments validates raw tool-call arguments against the
// declared parameter schema and decodes them. A validation or decoding
// failure is a ProtocolError: the single call is skipped, the session
// survives.
func DecodeFilterArguments(args json.RawMessage) (FilterArguments, error) {
	filterToolOnce.Do(initFilterTool)
	if filterToolErr != nil {
		return FilterArguments{}, filterToolErr
	}

	result, err := filterToolSchema.Validate(gojsonschema.NewStringLoader(string(args)))
	if err != nil {
		return FilterArguments{}, ProtocolErrorf("error validating filter_products arguments: %v", err)
	}
	if !result.Valid() {
		var sb strings.Builder
		sb.WriteString("filter_products arguments failed schema validation:")
		for _, e := range result.Errors() {
			_, _ = fmt.Fprintf(&sb, " %s;", e)
		}
		return FilterArguments{}, NewProtocolError(sb.String())
	}

	var decoded FilterArguments
	if err = json.Unmarshal(args, &decoded); err != nil {
		return FilterArguments{}, ProtocolErrorf("error unmarshaling filter_products arguments: %v", err)
	}
	return decoded, nil
}
