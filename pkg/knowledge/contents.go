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
	"context"
	"errors"
	"fmt"

	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
)

// Contents lists content records and the total count before paging.
func (k *Knowledge) Contents(ctx context.Context, opts contentsdb.ListOptions) ([]*contentsdb.Content, int, error) {
	return k.contents.List(ctx, k.name, opts)
}

// Content returns one content record. Unknown IDs yield
// contentsdb.ErrNotFound.
func (k *Knowledge) Content(ctx context.Context, id string) (*contentsdb.Content, error) {
	return k.contents.Get(ctx, k.name, id)
}

// RemoveContent deletes a content record and its chunks.
func (k *Knowledge) RemoveContent(ctx context.Context, id string) error {
	if _, err := k.contents.Get(ctx, k.name, id); err != nil {
		return err
	}
	if err := k.deleteVectors(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", id, err)
	}
	if err := k.contents.Delete(ctx, k.name, id); err != nil {
		return err
	}
	k.log.Info("Removed content", "content_id", id)
	return nil
}

// RemoveAll deletes every content record and its chunks. Records whose
// chunks cannot be deleted are kept and reported.
func (k *Knowledge) RemoveAll(ctx context.Context) error {
	records, _, err := k.contents.List(ctx, k.name, contentsdb.ListOptions{})
	if err != nil {
		return err
	}

	var errs []error
	for _, rec := range records {
		if err := k.deleteVectors(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete chunks of %s: %w", rec.ID, err))
			continue
		}
		if err := k.contents.Delete(ctx, k.name, rec.ID); err != nil && !errors.Is(err, contentsdb.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	k.log.Info("Removed all content", "contents", len(records), "errors", len(errs))
	return errors.Join(errs...)
}
