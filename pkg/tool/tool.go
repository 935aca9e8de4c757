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

// Package tool defines the tools that agents, MCP clients and the HTTP
// server invoke to query knowledge bases.
//
// A tool has a name, a description shown to the model, and a JSON schema
// for its arguments:
//
//	search, err := searchtool.New(searchtool.Config{Knowledge: kb})
//	result, err := search.Call(ctx, map[string]any{"query": "vacation policy"})
//
// Tools report failures the model should see in their result rather than
// as an error; an error from Call means the tool itself is broken.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is the base interface of every tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// IsLongRunning reports whether the tool returns before its work is done.
	IsLongRunning() bool

	// RequiresApproval reports whether a human must approve each call.
	RequiresApproval() bool
}

// CallableTool is a tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with decoded JSON arguments.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema of the arguments, or nil if the tool
	// takes none.
	Schema() map[string]any
}

// Toolset groups related tools.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]CallableTool, error)
}

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]CallableTool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...CallableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]CallableTool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t CallableTool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// AddToolset registers every tool of a toolset.
func (r *Registry) AddToolset(ctx context.Context, ts Toolset) error {
	tools, err := ts.Tools(ctx)
	if err != nil {
		return fmt.Errorf("toolset %s: %w", ts.Name(), err)
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("toolset %s: %w", ts.Name(), err)
		}
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools sorted by name.
func (r *Registry) List() []CallableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CallableTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
