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

package config

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

// Content source types.
const (
	SourceS3         = "s3"
	SourceGCS        = "gcs"
	SourceSharePoint = "sharepoint"
	SourceGitHub     = "github"
)

var sourceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// KnowledgeConfig configures one knowledge base.
type KnowledgeConfig struct {
	// Description is shown to agents in the search tool description.
	Description string `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"title=Description"`

	// VectorStore references an entry in vector_stores.
	// Default: the only configured vector store.
	VectorStore string `yaml:"vector_store,omitempty" json:"vector_store,omitempty" jsonschema:"title=Vector Store"`

	// Embedder references an entry in embedders.
	// Default: the only configured embedder.
	Embedder string `yaml:"embedder,omitempty" json:"embedder,omitempty" jsonschema:"title=Embedder"`

	// ContentsDB references an entry in databases. Empty keeps content
	// records in memory.
	ContentsDB string `yaml:"contents_db,omitempty" json:"contents_db,omitempty" jsonschema:"title=Contents Database"`

	// ContentsTable overrides the contents table name.
	ContentsTable string `yaml:"contents_table,omitempty" json:"contents_table,omitempty"`

	// Collection is the vector collection name. Default: the knowledge name.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	Chunking ChunkingConfig `yaml:"chunking,omitempty" json:"chunking,omitempty"`
	Search   SearchConfig   `yaml:"search,omitempty" json:"search,omitempty"`

	// MaxFileSize caps the bytes read from a single file or object.
	// Default: 50MB
	MaxFileSize int64 `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`

	// Concurrency bounds parallel reads during folder ingestion.
	// Default: 4
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`

	ContentSources []*ContentSourceConfig `yaml:"content_sources,omitempty" json:"content_sources,omitempty"`
}

// ChunkingConfig sizes document chunks in tokens.
type ChunkingConfig struct {
	// Size is the target chunk size in tokens. Default: 512
	Size int `yaml:"size,omitempty" json:"size,omitempty" jsonschema:"minimum=1,default=512"`

	// Overlap is the number of trailing lines repeated at the start of
	// the next chunk. Default: 0
	Overlap int `yaml:"overlap,omitempty" json:"overlap,omitempty" jsonschema:"minimum=0"`

	// Encoding is the tiktoken encoding, or "approx" for four characters
	// per token. Default: cl100k_base
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// SearchConfig configures the knowledge search tools.
type SearchConfig struct {
	// DefaultLimit is used when a search does not ask for a limit.
	// Default: 10
	DefaultLimit int `yaml:"default_limit,omitempty" json:"default_limit,omitempty" jsonschema:"minimum=1,default=10"`

	// MaxLimit caps requested limits. Default: 50
	MaxLimit int `yaml:"max_limit,omitempty" json:"max_limit,omitempty" jsonschema:"minimum=1,default=50"`

	// AgenticFilters exposes the search tool variant that accepts filters
	// chosen by the agent.
	AgenticFilters bool `yaml:"agentic_filters,omitempty" json:"agentic_filters,omitempty"`

	// Filters are user filters applied to every search. Either a mapping of
	// key to value or a list of {key, op, value} predicates.
	Filters any `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// ContentSourceConfig configures a remote content source. Fields apply per
// type; unrelated fields are ignored.
type ContentSourceConfig struct {
	Type string `yaml:"type" json:"type" jsonschema:"required,enum=s3,enum=gcs,enum=sharepoint,enum=github"`
	ID   string `yaml:"id" json:"id" jsonschema:"required"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// S3 and GCS
	BucketName string `yaml:"bucket_name,omitempty" json:"bucket_name,omitempty"`
	Prefix     string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// S3
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`

	// Public reads the bucket with anonymous credentials.
	Public bool `yaml:"public,omitempty" json:"public,omitempty"`

	// GCS (HMAC interoperability keys)
	Project       string `yaml:"project,omitempty" json:"project,omitempty"`
	HMACAccessKey string `yaml:"hmac_access_key,omitempty" json:"hmac_access_key,omitempty"`
	HMACSecret    string `yaml:"hmac_secret,omitempty" json:"hmac_secret,omitempty"`

	// SharePoint
	TenantID     string `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	Hostname     string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	SitePath     string `yaml:"site_path,omitempty" json:"site_path,omitempty"`
	GraphURL     string `yaml:"graph_url,omitempty" json:"graph_url,omitempty"`
	LoginURL     string `yaml:"login_url,omitempty" json:"login_url,omitempty"`

	// GitHub
	Repo   string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Token  string `yaml:"token,omitempty" json:"token,omitempty"`
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`
	APIURL string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
}

// SetDefaults applies default values.
func (c *KnowledgeConfig) SetDefaults(name string) {
	if c.Collection == "" {
		c.Collection = name
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	c.Chunking.SetDefaults()
	c.Search.SetDefaults()
	for _, src := range c.ContentSources {
		if src != nil {
			src.SetDefaults()
		}
	}
}

// Validate checks the knowledge configuration.
func (c *KnowledgeConfig) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must be non-negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}

	seen := make(map[string]bool, len(c.ContentSources))
	for i, src := range c.ContentSources {
		if src == nil {
			return fmt.Errorf("content_sources[%d] is empty", i)
		}
		if err := src.Validate(); err != nil {
			return fmt.Errorf("content_sources[%d]: %w", i, err)
		}
		if seen[src.ID] {
			return fmt.Errorf("content_sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

// SetDefaults applies default values.
func (c *ChunkingConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 512
	}
	if c.Encoding == "" {
		c.Encoding = "cl100k_base"
	}
}

// Validate checks the chunking configuration.
func (c *ChunkingConfig) Validate() error {
	if c.Size < 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d", c.Overlap)
	}
	return nil
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = 50
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.DefaultLimit < 0 || c.MaxLimit < 0 {
		return fmt.Errorf("limits must be positive")
	}
	if c.MaxLimit > 0 && c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("default_limit (%d) exceeds max_limit (%d)", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// FilterSet parses the configured user filters. Unrecognized entries are
// dropped and logged.
func (c *SearchConfig) FilterSet(log *slog.Logger) filter.Set {
	set, _ := filter.Parse(c.Filters, log)
	return set
}

// SetDefaults applies default values.
func (c *ContentSourceConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = c.ID
	}
	switch c.Type {
	case SourceS3:
		if c.Region == "" {
			c.Region = "us-east-1"
		}
	case SourceGCS:
		if c.Endpoint == "" {
			c.Endpoint = "storage.googleapis.com"
		}
	case SourceSharePoint:
		if c.SitePath == "" {
			c.SitePath = "/"
		}
	case SourceGitHub:
		if c.Branch == "" {
			c.Branch = "main"
		}
	}
}

// Validate checks the content source configuration.
func (c *ContentSourceConfig) Validate() error {
	if !sourceIDPattern.MatchString(c.ID) {
		return fmt.Errorf("invalid id %q", c.ID)
	}

	switch c.Type {
	case SourceS3:
		if c.BucketName == "" {
			return fmt.Errorf("s3 source %q requires bucket_name", c.ID)
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			return fmt.Errorf("s3 source %q requires both access_key_id and secret_access_key", c.ID)
		}
	case SourceGCS:
		if c.BucketName == "" {
			return fmt.Errorf("gcs source %q requires bucket_name", c.ID)
		}
		if (c.HMACAccessKey == "") != (c.HMACSecret == "") {
			return fmt.Errorf("gcs source %q requires both hmac_access_key and hmac_secret", c.ID)
		}
	case SourceSharePoint:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("sharepoint source %q requires tenant_id, client_id and client_secret", c.ID)
		}
		if c.Hostname == "" {
			return fmt.Errorf("sharepoint source %q requires hostname", c.ID)
		}
	case SourceGitHub:
		if c.Repo == "" {
			return fmt.Errorf("github source %q requires repo", c.ID)
		}
	default:
		return fmt.Errorf("unsupported content source type %q (supported: s3, gcs, sharepoint, github)", c.Type)
	}
	return nil
}
