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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/runtime"
	"github.com/kadirpekel/hectorkb/pkg/tool/searchtool"
)

// snippetLength caps the content printed per search hit.
const snippetLength = 240

// openRuntime loads the config and builds every knowledge base in it.
func openRuntime(ctx context.Context, cli *CLI) (*runtime.Runtime, error) {
	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	rt, err := runtime.New(ctx, cfg, runtime.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return rt, nil
}

// resolveKnowledge returns the named knowledge base, or the only one when
// name is empty.
func resolveKnowledge(rt *runtime.Runtime, name string) (*knowledge.Knowledge, error) {
	names := rt.KnowledgeNames()
	if name == "" {
		if len(names) != 1 {
			return nil, fmt.Errorf("--knowledge is required, available: %s", strings.Join(names, ", "))
		}
		name = names[0]
	}
	kb, ok := rt.Knowledge(name)
	if !ok {
		return nil, fmt.Errorf("knowledge %q not found, available: %s", name, strings.Join(names, ", "))
	}
	return kb, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// InsertCmd adds content to a knowledge base.
type InsertCmd struct {
	Knowledge   string `short:"k" help:"Knowledge base name. Optional with a single knowledge base."`
	Name        string `help:"Content name."`
	Description string `help:"Content description."`

	Text   string   `xor:"source" required:"" help:"Text to insert, or - to read stdin."`
	Path   string   `xor:"source" required:"" type:"path" help:"Local file or directory."`
	URL    string   `xor:"source" required:"" name:"url" help:"URL to fetch."`
	Topics []string `xor:"source" required:"" help:"Topics to look up on Wikipedia."`
	Source string   `xor:"source" required:"" help:"ID of a configured remote content source."`

	Kind       string `help:"Kind of remote content." default:"file" enum:"file,folder"`
	RemotePath string `name:"remote-path" help:"Path within the remote source."`
	Branch     string `help:"Branch override for GitHub sources."`

	Metadata     map[string]string `short:"m" help:"Metadata as key=value. Numbers and booleans are typed."`
	SkipIfExists bool              `name:"skip-if-exists" help:"Leave identical content alone."`
	Upsert       bool              `help:"Replace identical content instead of adding a copy."`
	JSON         bool              `help:"Print the result as JSON."`
}

func (c *InsertCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	req, err := c.request(os.Stdin)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	kb, err := resolveKnowledge(rt, c.Knowledge)
	if err != nil {
		return err
	}

	result, err := kb.Insert(ctx, req)
	if err != nil {
		return err
	}

	if c.JSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("%s: %d inserted, %d skipped, %d failed\n", kb.Name(), result.Inserted, result.Skipped, result.Failed)
		for _, content := range result.Contents {
			fmt.Printf("  %s  %-10s %s\n", content.ID, content.Status, content.Name)
		}
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d contents failed", result.Failed)
	}
	return nil
}

func (c *InsertCmd) request(stdin io.Reader) (knowledge.InsertRequest, error) {
	req := knowledge.InsertRequest{
		Name:         c.Name,
		Description:  c.Description,
		Text:         c.Text,
		Path:         c.Path,
		URL:          c.URL,
		Topics:       c.Topics,
		Metadata:     parseMetadata(c.Metadata),
		SkipIfExists: c.SkipIfExists,
		Upsert:       c.Upsert,
	}

	if c.Text == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("failed to read stdin: %w", err)
		}
		req.Text = string(data)
		if req.Name == "" {
			req.Name = "stdin"
		}
	}

	if c.Source != "" {
		req.RemoteContent = &remote.Content{
			SourceID: c.Source,
			Kind:     remote.Kind(c.Kind),
			Path:     c.RemotePath,
			Branch:   c.Branch,
		}
	}

	return req, req.Validate()
}

// parseMetadata types integer, float and boolean values so numeric range
// filters work on them.
func parseMetadata(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = parseScalar(v)
	}
	return out
}

func parseScalar(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// SearchCmd searches a knowledge base.
type SearchCmd struct {
	Query     string `arg:"" help:"Search query."`
	Knowledge string `short:"k" help:"Knowledge base name. Optional with a single knowledge base."`
	Limit     int    `short:"n" help:"Maximum number of results."`
	Filters   string `short:"f" help:"Filters as JSON: a mapping or a list of {key, op, value}."`
	JSON      bool   `help:"Print the result as JSON."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	kb, err := resolveKnowledge(rt, c.Knowledge)
	if err != nil {
		return err
	}
	st, ok := rt.SearchTool(kb.Name())
	if !ok {
		return fmt.Errorf("knowledge %q has no search tool", kb.Name())
	}

	requested := filter.Absent()
	var dropped []filter.Dropped
	if c.Filters != "" {
		requested, dropped = filter.Parse(c.Filters, slog.Default())
	}

	resp, err := st.Search(ctx, c.Query, c.Limit, requested)
	if err != nil {
		return err
	}
	resp.DroppedFilters = dropped

	if c.JSON {
		return printJSON(resp)
	}
	printResults(os.Stdout, resp)
	return nil
}

func printResults(w io.Writer, resp *searchtool.Response) {
	fmt.Fprintf(w, "%d results for %q", resp.Total, resp.Query)
	if resp.Filters.Len() > 0 {
		fmt.Fprintf(w, " where %s", resp.Filters)
	}
	fmt.Fprintln(w)

	for i, d := range resp.Documents {
		name := d.Name
		if name == "" {
			name = d.ContentID
		}
		fmt.Fprintf(w, "\n%d. %s (score %.3f)\n", i+1, name, d.Score)
		fmt.Fprintf(w, "   %s\n", snippet(d.Content))
	}

	if len(resp.InvalidFilterKeys) > 0 {
		fmt.Fprintf(w, "\nignored filter keys: %s\n", strings.Join(resp.InvalidFilterKeys, ", "))
	}
	for _, d := range resp.DroppedFilters {
		fmt.Fprintf(w, "dropped filter %s: %s\n", d.Entry, d.Reason)
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > snippetLength {
		return string(r[:snippetLength]) + "..."
	}
	return s
}

// FiltersCmd lists the metadata keys a knowledge base can be filtered on.
type FiltersCmd struct {
	Knowledge string `short:"k" help:"Knowledge base name. Optional with a single knowledge base."`
}

func (c *FiltersCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	kb, err := resolveKnowledge(rt, c.Knowledge)
	if err != nil {
		return err
	}
	keys, err := kb.ValidFilterKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys.Sorted() {
		fmt.Println(k)
	}
	return nil
}
