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

package remote

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

// Registry holds the content sources of one knowledge base, keyed by ID.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding sources.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and adds a source. IDs must be unique.
func (r *Registry) Register(s Source) error {
	if s == nil {
		return fmt.Errorf("content source is nil")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[s.SourceID()]; exists {
		return fmt.Errorf("content source %q already registered", s.SourceID())
	}
	r.sources[s.SourceID()] = s
	return nil
}

// Get returns a source by ID.
func (r *Registry) Get(id string) (Source, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	return s, ok
}

// List returns the sources sorted by ID.
func (r *Registry) List() []Source {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID() < out[j].SourceID() })
	return out
}

// Resolve validates a reference and returns the source it names.
func (r *Registry) Resolve(c Content) (Source, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote content: %w", err)
	}
	s, ok := r.Get(c.SourceID)
	if !ok {
		var ids []string
		for _, s := range r.List() {
			ids = append(ids, s.SourceID())
		}
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownSource, c.SourceID, ids)
	}
	return s, nil
}

// NewFromConfig builds a source from its configuration.
func NewFromConfig(cfg *config.ContentSourceConfig) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("content source config is nil")
	}

	var s Source
	switch cfg.Type {
	case config.SourceS3:
		s = &S3Config{
			ID:              cfg.ID,
			Name:            cfg.Name,
			BucketName:      cfg.BucketName,
			Region:          cfg.Region,
			Prefix:          cfg.Prefix,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Endpoint:        cfg.Endpoint,
			Public:          cfg.Public,
		}
	case config.SourceGCS:
		s = &GCSConfig{
			ID:            cfg.ID,
			Name:          cfg.Name,
			BucketName:    cfg.BucketName,
			Prefix:        cfg.Prefix,
			HMACAccessKey: cfg.HMACAccessKey,
			HMACSecret:    cfg.HMACSecret,
			Project:       cfg.Project,
			Endpoint:      cfg.Endpoint,
		}
	case config.SourceSharePoint:
		s = &SharePointConfig{
			ID:           cfg.ID,
			Name:         cfg.Name,
			TenantID:     cfg.TenantID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Hostname:     cfg.Hostname,
			SitePath:     cfg.SitePath,
			GraphURL:     cfg.GraphURL,
			LoginURL:     cfg.LoginURL,
		}
	case config.SourceGitHub:
		s = &GitHubConfig{
			ID:     cfg.ID,
			Name:   cfg.Name,
			Repo:   cfg.Repo,
			Token:  cfg.Token,
			Branch: cfg.Branch,
			APIURL: cfg.APIURL,
		}
	default:
		return nil, fmt.Errorf("unsupported content source type %q", cfg.Type)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewRegistryFromConfig builds a registry from a knowledge base's content
// sources.
func NewRegistryFromConfig(cfgs []*config.ContentSourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(cfgs))}
	for i, cfg := range cfgs {
		s, err := NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("content_sources[%d]: %w", i, err)
		}
		if err := r.Register(s); err != nil {
			return nil, fmt.Errorf("content_sources[%d]: %w", i, err)
		}
	}
	return r, nil
}
