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

package runtime

import (
	"context"
	"fmt"

	"github.com/kadirpekel/hectorkb/pkg/builder"
	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// EmbedderFactory creates an embedder from its configuration.
type EmbedderFactory func(cfg *embedder.Config) (embedder.Embedder, error)

// VectorFactory creates a vector provider from its configuration.
type VectorFactory func(cfg *vector.ProviderConfig) (vector.Provider, error)

// ContentsFactory creates the contents store of a knowledge base.
type ContentsFactory func(ctx context.Context, pool *contentsdb.Pool, cfg *config.Config, kb *config.KnowledgeConfig) (contentsdb.Store, error)

// DefaultEmbedderFactory creates Embedder instances based on provider type.
func DefaultEmbedderFactory(cfg *embedder.Config) (embedder.Embedder, error) {
	return builder.EmbedderFromConfig(cfg).Build()
}

// DefaultVectorFactory creates vector providers based on provider type.
func DefaultVectorFactory(cfg *vector.ProviderConfig) (vector.Provider, error) {
	return builder.VectorProviderFromConfig(cfg).Build()
}

// DefaultContentsFactory keeps content records in memory unless the
// knowledge base names a database.
func DefaultContentsFactory(ctx context.Context, pool *contentsdb.Pool, cfg *config.Config, kb *config.KnowledgeConfig) (contentsdb.Store, error) {
	if kb.ContentsDB == "" {
		return contentsdb.NewMemoryStore(), nil
	}
	db, ok := cfg.Databases[kb.ContentsDB]
	if !ok || db == nil {
		return nil, fmt.Errorf("database %q not found", kb.ContentsDB)
	}
	return contentsdb.NewSQLStoreFromConfig(ctx, pool, db, kb.ContentsTable)
}
