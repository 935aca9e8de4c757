// Copyright 2025 Kadir Pekel
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

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// StrictValidationResult lists structural problems found in a raw config.
type StrictValidationResult struct {
	UnknownFields []string
	TypeErrors    []string
}

// Valid reports whether no problems were found.
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// FormatErrors renders the problems for humans.
func (r *StrictValidationResult) FormatErrors() string {
	if r.Valid() {
		return ""
	}

	var sb strings.Builder
	if len(r.UnknownFields) > 0 {
		sb.WriteString("unknown fields:\n")
		for _, field := range r.UnknownFields {
			fmt.Fprintf(&sb, "  - %s\n", field)
		}
	}
	if len(r.TypeErrors) > 0 {
		sb.WriteString("type errors:\n")
		for _, err := range r.TypeErrors {
			fmt.Fprintf(&sb, "  - %s\n", err)
		}
	}
	sb.WriteString("run 'hectorkb schema' to print the accepted structure\n")
	return sb.String()
}

// ValidateConfigStructure decodes raw into a Config without weak typing
// and reports every key that does not map onto a field.
func ValidateConfigStructure(raw map[string]any) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &Config{},
		Metadata:         &md,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		var merr *mapstructure.Error
		if errors.As(err, &merr) {
			result.TypeErrors = append(result.TypeErrors, merr.Errors...)
		} else {
			result.TypeErrors = append(result.TypeErrors, err.Error())
		}
	}

	result.UnknownFields = append(result.UnknownFields, md.Unused...)
	sort.Strings(result.UnknownFields)
	sort.Strings(result.TypeErrors)
	return result, nil
}

// ValidateConfigBytes parses YAML or JSON and runs ValidateConfigStructure.
func ValidateConfigBytes(data []byte) (*StrictValidationResult, error) {
	raw, err := parseBytes(data)
	if err != nil {
		return nil, err
	}
	expanded, _ := ExpandEnvVarsInData(raw).(map[string]any)
	return ValidateConfigStructure(expanded)
}
