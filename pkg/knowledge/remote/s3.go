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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the part of the S3 client used for listing and downloads.
type s3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3Config reads documents from an S3 bucket. Without static credentials
// the default AWS credential chain is used and public buckets are read with
// anonymous credentials.
type S3Config struct {
	ID              string
	Name            string
	BucketName      string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint targets an S3 compatible service and switches to path
	// style addressing.
	Endpoint string
	Public   bool

	once      sync.Once
	client    s3API
	clientErr error
}

func (c *S3Config) SourceID() string   { return c.ID }
func (c *S3Config) SourceName() string { return c.Name }
func (c *S3Config) Type() string       { return "s3" }

// File references one object key, relative to Prefix.
func (c *S3Config) File(key string, opts ...Option) Content {
	return newContent(c.ID, KindFile, key, opts)
}

// Folder references every object under prefix, relative to Prefix.
func (c *S3Config) Folder(prefix string, opts ...Option) Content {
	return newContent(c.ID, KindFolder, prefix, opts)
}

// Validate checks the configuration.
func (c *S3Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("s3 source id is required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("s3 source %q requires a bucket name", c.ID)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("s3 source %q requires both access key id and secret", c.ID)
	}
	return nil
}

func (c *S3Config) s3Client(ctx context.Context) (s3API, error) {
	c.once.Do(func() {
		if c.client != nil {
			return
		}

		var opts []func(*awsconfig.LoadOptions) error
		if c.Region != "" {
			opts = append(opts, awsconfig.WithRegion(c.Region))
		}
		switch {
		case c.AccessKeyID != "":
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
		case c.Public:
			opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
		}

		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			c.clientErr = fmt.Errorf("failed to load aws config: %w", err)
			return
		}

		c.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return c.client, c.clientErr
}

func (c *S3Config) key(p string) string {
	return strings.TrimPrefix(folderPrefix(c.Prefix)+strings.TrimPrefix(p, "/"), "/")
}

// List returns the object for a file reference, or every object under a
// folder reference. Directory placeholder keys are left out.
func (c *S3Config) List(ctx context.Context, ref Content) ([]Object, error) {
	client, err := c.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	prefix := c.key(ref.Path)
	if ref.Kind == KindFolder {
		prefix = c.key(folderPrefix(ref.Path))
	}

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.BucketName),
		Prefix: aws.String(prefix),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", c.BucketName, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			keep := !strings.HasSuffix(key, "/")
			if ref.Kind == KindFile {
				keep = keep && key == prefix
			}
			if !keep {
				continue
			}
			objects = append(objects, Object{
				SourceID: c.ID,
				Path:     key,
				Size:     aws.ToInt64(obj.Size),
				ModTime:  aws.ToTime(obj.LastModified),
				ETag:     strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}

	if ref.Kind == KindFile && len(objects) == 0 {
		return nil, fmt.Errorf("s3://%s/%s not found", c.BucketName, prefix)
	}
	return objects, nil
}

// Read downloads an object with the concurrent S3 downloader.
func (c *S3Config) Read(ctx context.Context, o Object) ([]byte, error) {
	client, err := c.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.BucketName),
		Key:    aws.String(o.Path),
	}
	size := o.Size
	if o.MaxSize > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=0-%d", o.MaxSize))
		size = min(size, o.MaxSize+1)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, max(size, 0)))
	downloader := manager.NewDownloader(client)
	if _, err := downloader.Download(ctx, buf, input); err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", c.BucketName, o.Path, err)
	}
	return buf.Bytes(), nil
}

var _ Source = (*S3Config)(nil)
