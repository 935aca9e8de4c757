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
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultGCSEndpoint = "storage.googleapis.com"

// GCSConfig reads documents from a Google Cloud Storage bucket through the
// S3 compatible XML API. HMAC keys authenticate; without them the bucket
// must be public.
type GCSConfig struct {
	ID            string
	Name          string
	BucketName    string
	Prefix        string
	HMACAccessKey string
	HMACSecret    string

	// Project is reported with the source; object access only needs the
	// bucket.
	Project string

	// Endpoint defaults to storage.googleapis.com. An http:// prefix
	// disables TLS.
	Endpoint string

	once      sync.Once
	client    *minio.Client
	clientErr error
}

func (c *GCSConfig) SourceID() string   { return c.ID }
func (c *GCSConfig) SourceName() string { return c.Name }
func (c *GCSConfig) Type() string       { return "gcs" }

// File references one object, relative to Prefix.
func (c *GCSConfig) File(name string, opts ...Option) Content {
	return newContent(c.ID, KindFile, name, opts)
}

// Folder references every object under prefix, relative to Prefix.
func (c *GCSConfig) Folder(prefix string, opts ...Option) Content {
	return newContent(c.ID, KindFolder, prefix, opts)
}

// Validate checks the configuration.
func (c *GCSConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("gcs source id is required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("gcs source %q requires a bucket name", c.ID)
	}
	if (c.HMACAccessKey == "") != (c.HMACSecret == "") {
		return fmt.Errorf("gcs source %q requires both hmac access key and secret", c.ID)
	}
	return nil
}

func (c *GCSConfig) minioClient() (*minio.Client, error) {
	c.once.Do(func() {
		endpoint := c.Endpoint
		if endpoint == "" {
			endpoint = defaultGCSEndpoint
		}
		secure := !strings.HasPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

		c.client, c.clientErr = minio.New(endpoint, &minio.Options{
			Creds:        credentials.NewStaticV4(c.HMACAccessKey, c.HMACSecret, ""),
			Secure:       secure,
			Region:       "auto",
			BucketLookup: minio.BucketLookupPath,
		})
		if c.clientErr != nil {
			c.clientErr = fmt.Errorf("failed to create gcs client: %w", c.clientErr)
		}
	})
	return c.client, c.clientErr
}

func (c *GCSConfig) key(p string) string {
	return strings.TrimPrefix(folderPrefix(c.Prefix)+strings.TrimPrefix(p, "/"), "/")
}

// List returns the object for a file reference, or every object under a
// folder reference.
func (c *GCSConfig) List(ctx context.Context, ref Content) ([]Object, error) {
	client, err := c.minioClient()
	if err != nil {
		return nil, err
	}

	prefix := c.key(ref.Path)
	if ref.Kind == KindFolder {
		prefix = c.key(folderPrefix(ref.Path))
	}

	// stops the lister goroutine when we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []Object
	for info := range client.ListObjects(ctx, c.BucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", c.BucketName, prefix, info.Err)
		}
		keep := !strings.HasSuffix(info.Key, "/")
		if ref.Kind == KindFile {
			keep = keep && info.Key == prefix
		}
		if !keep {
			continue
		}
		objects = append(objects, Object{
			SourceID: c.ID,
			Path:     info.Key,
			Size:     info.Size,
			ModTime:  info.LastModified,
			ETag:     strings.Trim(info.ETag, `"`),
		})
	}

	if ref.Kind == KindFile && len(objects) == 0 {
		return nil, fmt.Errorf("gs://%s/%s not found", c.BucketName, prefix)
	}
	return objects, nil
}

// Read downloads one object.
func (c *GCSConfig) Read(ctx context.Context, o Object) ([]byte, error) {
	client, err := c.minioClient()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, c.BucketName, o.Path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", c.BucketName, o.Path, err)
	}
	defer obj.Close()

	data, err := readBody(obj, o.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", c.BucketName, o.Path, err)
	}
	return data, nil
}

var _ Source = (*GCSConfig)(nil)
