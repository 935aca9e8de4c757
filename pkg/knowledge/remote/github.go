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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

const (
	defaultGitHubURL    = "https://api.github.com"
	defaultGitHubBranch = "main"
)

// GitHubConfig reads files from a GitHub repository through the REST API.
// A fine-grained token with "Contents: read" is enough for private repos.
type GitHubConfig struct {
	ID   string
	Name string

	// Repo is owner/name.
	Repo   string
	Token  string
	Branch string

	// APIURL overrides https://api.github.com, e.g. for GitHub Enterprise.
	APIURL string

	once   sync.Once
	client *httpclient.Client
}

func (c *GitHubConfig) SourceID() string   { return c.ID }
func (c *GitHubConfig) SourceName() string { return c.Name }
func (c *GitHubConfig) Type() string       { return "github" }

// File references one file. WithBranch overrides the configured branch.
func (c *GitHubConfig) File(p string, opts ...Option) Content {
	return newContent(c.ID, KindFile, p, opts)
}

// Folder references every file below a directory of the repository.
func (c *GitHubConfig) Folder(p string, opts ...Option) Content {
	return newContent(c.ID, KindFolder, p, opts)
}

// Validate checks the configuration.
func (c *GitHubConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("github source id is required")
	}
	owner, name, ok := strings.Cut(c.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("github source %q: repo must be owner/name, got %q", c.ID, c.Repo)
	}
	return nil
}

func (c *GitHubConfig) httpClient() *httpclient.Client {
	c.once.Do(func() {
		c.client = httpclient.New(
			httpclient.WithName("github"),
			httpclient.WithHeaderParser(httpclient.ParseGitHubHeaders),
			httpclient.WithRetryStrategy(httpclient.GitHubRetryStrategy),
		)
	})
	return c.client
}

func (c *GitHubConfig) apiURL() string {
	if c.APIURL != "" {
		return strings.TrimSuffix(c.APIURL, "/")
	}
	return defaultGitHubURL
}

func (c *GitHubConfig) branch(ref string) string {
	switch {
	case ref != "":
		return ref
	case c.Branch != "":
		return c.Branch
	default:
		return defaultGitHubBranch
	}
}

func (c *GitHubConfig) header(accept string) http.Header {
	h := http.Header{
		"Accept":               {accept},
		"X-GitHub-Api-Version": {"2022-11-28"},
	}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

func (c *GitHubConfig) get(ctx context.Context, u, accept string) (*http.Response, error) {
	resp, err := c.httpClient().DoContext(ctx, http.MethodGet, u, nil, c.header(accept))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ReadError(resp)
	}
	return resp, nil
}

func (c *GitHubConfig) contentsURL(p, branch string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s",
		c.apiURL(), c.Repo, escapePath(p), url.QueryEscape(branch))
}

type gitTree struct {
	SHA       string `json:"sha"`
	Truncated bool   `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"tree"`
}

type gitContent struct {
	Type string `json:"type"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// List returns the file itself, or every blob of the branch tree below the
// folder path.
func (c *GitHubConfig) List(ctx context.Context, ref Content) ([]Object, error) {
	branch := c.branch(ref.Branch)

	if ref.Kind == KindFile {
		resp, err := c.get(ctx, c.contentsURL(ref.Path, branch), "application/vnd.github+json")
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s@%s:%s: %w", c.Repo, branch, ref.Path, err)
		}
		defer resp.Body.Close()

		var meta gitContent
		if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
			return nil, fmt.Errorf("failed to decode github contents response: %w", err)
		}
		if meta.Type != "file" {
			return nil, fmt.Errorf("%s@%s:%s is a %s, not a file", c.Repo, branch, ref.Path, meta.Type)
		}
		return []Object{{
			SourceID: c.ID,
			Path:     meta.Path,
			Size:     meta.Size,
			ETag:     meta.SHA,
			Branch:   branch,
		}}, nil
	}

	u := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.apiURL(), c.Repo, url.PathEscape(branch))
	resp, err := c.get(ctx, u, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("failed to list tree of %s@%s: %w", c.Repo, branch, err)
	}
	defer resp.Body.Close()

	var tree gitTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode github tree response: %w", err)
	}
	if tree.Truncated {
		return nil, fmt.Errorf("tree of %s@%s is too large to list recursively", c.Repo, branch)
	}

	prefix := folderPrefix(ref.Path)
	var objects []Object
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !strings.HasPrefix(entry.Path, prefix) {
			continue
		}
		objects = append(objects, Object{
			SourceID: c.ID,
			Path:     entry.Path,
			Size:     entry.Size,
			ETag:     entry.SHA,
			Branch:   branch,
		})
	}
	return objects, nil
}

// Read fetches the raw file content.
func (c *GitHubConfig) Read(ctx context.Context, o Object) ([]byte, error) {
	branch := c.branch(o.Branch)

	resp, err := c.get(ctx, c.contentsURL(o.Path, branch), "application/vnd.github.raw")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s@%s:%s: %w", c.Repo, branch, o.Path, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, o.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s@%s:%s: %w", c.Repo, branch, o.Path, err)
	}
	return data, nil
}

var _ Source = (*GitHubConfig)(nil)
