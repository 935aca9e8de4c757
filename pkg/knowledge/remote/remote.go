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

// Package remote reads documents from remote content sources: S3 and GCS
// buckets, SharePoint document libraries and GitHub repositories.
//
// A source is configured once and then used to build references to the
// files or folders a knowledge base should ingest:
//
//	docs := &remote.S3Config{ID: "s3-docs", Name: "S3 Documents", BucketName: "acme-company-docs"}
//	kb.Insert(ctx, knowledge.InsertRequest{RemoteContent: docs.Folder("handbook/")})
package remote

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrUnknownSource is returned when a content reference names a source ID
// that is not registered.
var ErrUnknownSource = errors.New("unknown content source")

// Kind tells whether a reference points at one object or at every object
// under a prefix.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Content references remote content to insert into a knowledge base.
type Content struct {
	SourceID string `json:"source_id"`
	Kind     Kind   `json:"kind"`
	Path     string `json:"path"`

	// Branch overrides the source branch for GitHub sources.
	Branch string `json:"branch,omitempty"`
}

// Validate checks that the reference is complete.
func (c Content) Validate() error {
	if c.SourceID == "" {
		return errors.New("source_id is required")
	}
	switch c.Kind {
	case KindFile:
		if c.Path == "" {
			return errors.New("path is required for file content")
		}
	case KindFolder:
	default:
		return errors.New(`kind must be "file" or "folder"`)
	}
	return nil
}

// Option adjusts a content reference.
type Option func(*Content)

// WithBranch selects a branch for GitHub sources.
func WithBranch(branch string) Option {
	return func(c *Content) {
		c.Branch = branch
	}
}

func newContent(sourceID string, kind Kind, p string, opts []Option) Content {
	c := Content{SourceID: sourceID, Kind: kind, Path: p}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Object is a single listed document.
type Object struct {
	SourceID string
	Path     string
	Size     int64
	ModTime  time.Time
	ETag     string
	Branch   string

	// MaxSize, when positive, bounds a download: Read returns at most
	// MaxSize+1 bytes so callers can tell the object was too large.
	MaxSize int64

	// backend specific handle, such as a drive item ID
	ref string
}

// Name returns the base name of the object.
func (o Object) Name() string {
	return path.Base(o.Path)
}

// Source lists and reads documents from one remote location.
type Source interface {
	SourceID() string
	SourceName() string

	// Type is one of s3, gcs, sharepoint or github.
	Type() string

	// File references a single document.
	File(path string, opts ...Option) Content

	// Folder references every document below prefix.
	Folder(prefix string, opts ...Option) Content

	// List resolves a reference to the objects it covers.
	List(ctx context.Context, c Content) ([]Object, error)

	// Read downloads one object.
	Read(ctx context.Context, o Object) ([]byte, error)

	Validate() error
}

// readBody reads r, stopping one byte past max when max is positive.
func readBody(r io.Reader, max int64) ([]byte, error) {
	if max > 0 {
		r = io.LimitReader(r, max+1)
	}
	return io.ReadAll(r)
}

// folderPrefix normalizes a folder reference to "" or "dir/".
func folderPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
