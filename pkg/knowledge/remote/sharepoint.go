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
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	defaultLoginURL = "https://login.microsoftonline.com"
	graphScope      = "https://graph.microsoft.com/.default"
)

// SharePointConfig reads documents from the default document library of a
// SharePoint site through Microsoft Graph, authenticating as an app
// registration with the client credentials flow.
type SharePointConfig struct {
	ID           string
	Name         string
	TenantID     string
	ClientID     string
	ClientSecret string

	// Hostname is the tenant host, e.g. acme.sharepoint.com.
	Hostname string

	// SitePath is the server relative site path, e.g. /sites/marketing.
	// Default: the root site.
	SitePath string

	// GraphURL and LoginURL override the Microsoft endpoints.
	GraphURL string
	LoginURL string

	once      sync.Once
	client    *httpclient.Client
	siteMu    sync.Mutex
	siteID    string
	clientErr error
}

func (c *SharePointConfig) SourceID() string   { return c.ID }
func (c *SharePointConfig) SourceName() string { return c.Name }
func (c *SharePointConfig) Type() string       { return "sharepoint" }

// File references one document by its path inside the library.
func (c *SharePointConfig) File(p string, opts ...Option) Content {
	return newContent(c.ID, KindFile, p, opts)
}

// Folder references every document below a library folder, recursively.
func (c *SharePointConfig) Folder(p string, opts ...Option) Content {
	return newContent(c.ID, KindFolder, p, opts)
}

// Validate checks the configuration.
func (c *SharePointConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("sharepoint source id is required")
	}
	if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("sharepoint source %q requires tenant id, client id and client secret", c.ID)
	}
	if c.Hostname == "" {
		return fmt.Errorf("sharepoint source %q requires a hostname", c.ID)
	}
	return nil
}

func (c *SharePointConfig) graphURL() string {
	if c.GraphURL != "" {
		return strings.TrimSuffix(c.GraphURL, "/")
	}
	return defaultGraphURL
}

func (c *SharePointConfig) httpClient() *httpclient.Client {
	c.once.Do(func() {
		login := defaultLoginURL
		if c.LoginURL != "" {
			login = strings.TrimSuffix(c.LoginURL, "/")
		}
		cc := &clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", login, url.PathEscape(c.TenantID)),
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		c.client = httpclient.New(
			httpclient.WithName("sharepoint"),
			httpclient.WithHTTPClient(cc.Client(context.Background())),
		)
	})
	return c.client
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	ETag                 string    `json:"eTag"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
}

type driveItemPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

func (c *SharePointConfig) getJSON(ctx context.Context, u string, out any) error {
	resp, err := c.httpClient().DoContext(ctx, http.MethodGet, u, nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ReadError(resp)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *SharePointConfig) site(ctx context.Context) (string, error) {
	c.siteMu.Lock()
	defer c.siteMu.Unlock()

	if c.siteID != "" {
		return c.siteID, nil
	}

	u := fmt.Sprintf("%s/sites/%s", c.graphURL(), c.Hostname)
	if sp := strings.Trim(c.SitePath, "/"); sp != "" {
		u += ":/" + escapePath(sp)
	}

	var site struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, u, &site); err != nil {
		return "", fmt.Errorf("failed to resolve sharepoint site %s%s: %w", c.Hostname, c.SitePath, err)
	}
	if site.ID == "" {
		return "", fmt.Errorf("sharepoint site %s%s has no id", c.Hostname, c.SitePath)
	}
	c.siteID = site.ID
	return site.ID, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (c *SharePointConfig) itemURL(siteID, p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return fmt.Sprintf("%s/sites/%s/drive/root", c.graphURL(), url.PathEscape(siteID))
	}
	return fmt.Sprintf("%s/sites/%s/drive/root:/%s:", c.graphURL(), url.PathEscape(siteID), escapePath(p))
}

func (c *SharePointConfig) object(dir string, item driveItem) Object {
	p := item.Name
	if dir = strings.Trim(dir, "/"); dir != "" {
		p = dir + "/" + item.Name
	}
	return Object{
		SourceID: c.ID,
		Path:     p,
		Size:     item.Size,
		ModTime:  item.LastModifiedDateTime,
		ETag:     item.ETag,
		ref:      item.ID,
	}
}

// List resolves a file to its drive item, or walks a folder and its
// subfolders.
func (c *SharePointConfig) List(ctx context.Context, ref Content) ([]Object, error) {
	siteID, err := c.site(ctx)
	if err != nil {
		return nil, err
	}

	if ref.Kind == KindFile {
		var item driveItem
		if err := c.getJSON(ctx, c.itemURL(siteID, ref.Path), &item); err != nil {
			return nil, fmt.Errorf("failed to get sharepoint item %s: %w", ref.Path, err)
		}
		if item.Folder != nil {
			return nil, fmt.Errorf("sharepoint item %s is a folder", ref.Path)
		}
		dir := ""
		if i := strings.LastIndex(strings.Trim(ref.Path, "/"), "/"); i >= 0 {
			dir = strings.Trim(ref.Path, "/")[:i]
		}
		return []Object{c.object(dir, item)}, nil
	}

	var objects []Object
	pending := []string{strings.Trim(ref.Path, "/")}
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		next := c.itemURL(siteID, dir) + "/children"
		for next != "" {
			var page driveItemPage
			if err := c.getJSON(ctx, next, &page); err != nil {
				return nil, fmt.Errorf("failed to list sharepoint folder %q: %w", dir, err)
			}
			for _, item := range page.Value {
				switch {
				case item.Folder != nil:
					sub := item.Name
					if dir != "" {
						sub = dir + "/" + item.Name
					}
					pending = append(pending, sub)
				case item.File != nil:
					objects = append(objects, c.object(dir, item))
				}
			}
			next = page.NextLink
		}
	}
	return objects, nil
}

// Read downloads the item content.
func (c *SharePointConfig) Read(ctx context.Context, o Object) ([]byte, error) {
	siteID, err := c.site(ctx)
	if err != nil {
		return nil, err
	}

	u := c.itemURL(siteID, o.Path) + "/content"
	if o.ref != "" {
		u = fmt.Sprintf("%s/sites/%s/drive/items/%s/content", c.graphURL(), url.PathEscape(siteID), url.PathEscape(o.ref))
	}

	resp, err := c.httpClient().DoContext(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download sharepoint item %s: %w", o.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download sharepoint item %s: %w", o.Path, httpclient.ReadError(resp))
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, o.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read sharepoint item %s: %w", o.Path, err)
	}
	return data, nil
}

var _ Source = (*SharePointConfig)(nil)
