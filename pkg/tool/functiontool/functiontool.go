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

// Package functiontool builds tools from typed Go functions. The argument
// schema is generated from the struct tags of the argument type:
//
//	type KeysArgs struct {
//	    Prefix string `json:"prefix,omitempty" jsonschema:"description=Only keys with this prefix"`
//	}
//
//	keys, err := functiontool.New(
//	    functiontool.Config{Name: "list_filter_keys", Description: "List filterable metadata keys"},
//	    func(ctx context.Context, args KeysArgs) (map[string]any, error) {
//	        ...
//	    },
//	)
//
// Use it for small stateless tools; implement tool.CallableTool directly
// when a tool needs a dynamic schema or its own error reporting.
package functiontool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/hectorkb/pkg/tool"
)

// Config names a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string
}

// New creates a CallableTool from a typed function.
func New[Args any](cfg Config, fn func(context.Context, Args) (map[string]any, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema, err := Schema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// NewWithValidation creates a CallableTool that checks decoded arguments
// before calling fn.
func NewWithValidation[Args any](
	cfg Config,
	fn func(context.Context, Args) (map[string]any, error),
	validate func(Args) error,
) (tool.CallableTool, error) {
	base, err := New(cfg, fn)
	if err != nil {
		return nil, err
	}
	ft := base.(*functionTool[Args])
	ft.validate = validate
	return ft, nil
}

type functionTool[Args any] struct {
	config   Config
	fn       func(context.Context, Args) (map[string]any, error)
	validate func(Args) error
	schema   map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.config.Name }
func (t *functionTool[Args]) Description() string    { return t.config.Description }
func (t *functionTool[Args]) IsLongRunning() bool    { return false }
func (t *functionTool[Args]) RequiresApproval() bool { return false }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

// Call decodes args into the argument type and calls the function.
func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	var typed Args
	if err := Decode(args, &typed); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}

	if t.validate != nil {
		if err := t.validate(typed); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", t.config.Name, err)
		}
	}

	return t.fn(ctx, typed)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
