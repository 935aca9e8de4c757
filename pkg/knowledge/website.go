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

package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultCrawlDepth = 3
	defaultCrawlLinks = 10
)

// CrawlOptions turns a URL insert into a crawl of the site the URL
// belongs to.
type CrawlOptions struct {
	// MaxDepth is the number of link hops followed from the start page,
	// which is depth 1. Default: 3
	MaxDepth int `json:"max_depth,omitempty"`

	// MaxLinks caps the number of pages read. Default: 10
	MaxLinks int `json:"max_links,omitempty"`
}

func (o CrawlOptions) limits() (depth, links int) {
	depth, links = o.MaxDepth, o.MaxLinks
	if depth <= 0 {
		depth = defaultCrawlDepth
	}
	if links <= 0 {
		links = defaultCrawlLinks
	}
	return depth, links
}

// Page is one crawled page.
type Page struct {
	URL   string
	Depth int
	Title string
	Text  string
	Size  int
}

// WebsiteReader crawls the pages of one host breadth first, starting at a
// URL and following links up to a depth and page count.
type WebsiteReader struct {
	Options CrawlOptions

	// Fetch downloads a page.
	Fetch func(ctx context.Context, url string) ([]byte, error)

	Logger *slog.Logger
}

// Crawl reads pages starting at start. Every call starts from an empty
// visited set. Pages that fail to load after the first are logged and
// counted in the second result; a failing start page is an error.
func (w *WebsiteReader) Crawl(ctx context.Context, start string) ([]Page, int, error) {
	root, err := url.Parse(start)
	if err != nil || (root.Scheme != "http" && root.Scheme != "https") || root.Host == "" {
		return nil, 0, fmt.Errorf("invalid url %q", start)
	}
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	maxDepth, maxLinks := w.Options.limits()

	type target struct {
		u     *url.URL
		depth int
	}
	visited := make(map[string]bool)
	queue := []target{{u: canonicalURL(root), depth: 1}}
	var pages []Page
	failed := 0

	for len(queue) > 0 && len(pages) < maxLinks {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		next := queue[0]
		queue = queue[1:]

		key := next.u.String()
		if visited[key] || next.depth > maxDepth {
			continue
		}
		visited[key] = true

		data, err := w.Fetch(ctx, key)
		if err != nil {
			if len(visited) == 1 {
				return nil, 0, err
			}
			log.Warn("Skipping unreadable page", "url", key, "error", err)
			failed++
			continue
		}

		doc, err := ParseHTML(data)
		if err != nil {
			log.Warn("Skipping unparsable page", "url", key, "error", err)
			failed++
			continue
		}
		pages = append(pages, Page{URL: key, Depth: next.depth, Title: doc.Title, Text: doc.Text, Size: len(data)})

		if next.depth >= maxDepth {
			continue
		}
		for _, href := range doc.Links {
			link, err := next.u.Parse(href)
			if err != nil || (link.Scheme != "http" && link.Scheme != "https") || !strings.EqualFold(link.Host, root.Host) {
				continue
			}
			link = canonicalURL(link)
			if !visited[link.String()] {
				queue = append(queue, target{u: link, depth: next.depth + 1})
			}
		}
	}
	return pages, failed, nil
}

func canonicalURL(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return &c
}

// HTMLDocument is the readable part of an HTML page.
type HTMLDocument struct {
	Title string
	Text  string
	Links []string
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P:       true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1:      true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Pre:     true, atom.Blockquote: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// ParseHTML extracts the title, the visible text (one line per block) and
// the link targets of an HTML page.
func ParseHTML(data []byte) (*HTMLDocument, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc := &HTMLDocument{}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Title:
				if doc.Title == "" {
					doc.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case n.DataAtom == atom.A:
				for _, a := range n.Attr {
					if a.Key == "href" && a.Val != "" {
						doc.Links = append(doc.Links, a.Val)
					}
				}
			case skippedElements[n.DataAtom]:
				return
			}
			if blockElements[n.DataAtom] {
				b.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(strings.Join(strings.Fields(n.Data), " "))
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(root)

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	doc.Text = strings.Join(kept, "\n")
	return doc, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// HTMLReader extracts the visible text of HTML files.
type HTMLReader struct{}

func (HTMLReader) Name() string         { return "html" }
func (HTMLReader) Extensions() []string { return []string{".html", ".htm"} }

func (HTMLReader) Read(_ context.Context, _ string, data []byte) (string, error) {
	doc, err := ParseHTML(data)
	if err != nil {
		return "", err
	}
	if doc.Title != "" && !strings.HasPrefix(doc.Text, doc.Title) {
		return doc.Title + "\n" + doc.Text, nil
	}
	return doc.Text, nil
}
