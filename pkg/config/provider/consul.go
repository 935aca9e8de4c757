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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
)

// consulWaitTime bounds a single blocking query.
const consulWaitTime = 5 * time.Minute

// ConsulProvider reads config from a Consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	client *api.Client
	key    string

	mu        sync.Mutex
	lastIndex uint64
}

// NewConsulProvider connects to the first endpoint, or to the agent named
// by CONSUL_HTTP_ADDR when no endpoint is given.
func NewConsulProvider(endpoints []string, key string) (*ConsulProvider, error) {
	cfg := api.DefaultConfig()
	if len(endpoints) > 0 {
		cfg.Address = endpoints[0]
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulProvider{client: client, key: key}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type {
	return TypeConsul
}

// Load reads the key value.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	pair, meta, err := p.client.KV().Get(p.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.key)
	}

	p.mu.Lock()
	p.lastIndex = meta.LastIndex
	p.mu.Unlock()

	return pair.Value, nil
}

// Watch long-polls the key and signals whenever its modify index moves.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)

		p.mu.Lock()
		index := p.lastIndex
		p.mu.Unlock()

		for ctx.Err() == nil {
			opts := (&api.QueryOptions{WaitIndex: index, WaitTime: consulWaitTime}).WithContext(ctx)
			pair, meta, err := p.client.KV().Get(p.key, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Consul watch failed, retrying", "key", p.key, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			// The index can go backwards after a snapshot restore.
			if meta.LastIndex < index {
				index = 0
				continue
			}
			if meta.LastIndex == index || pair == nil {
				index = meta.LastIndex
				continue
			}
			index = meta.LastIndex

			select {
			case ch <- struct{}{}:
				slog.Debug("Consul key changed", "key", p.key, "index", index)
			default:
			}
		}
	}()

	slog.Info("Watching consul key", "key", p.key)
	return ch, nil
}

// Close is a no-op; the consul client holds no persistent connection.
func (p *ConsulProvider) Close() error {
	return nil
}

// Put writes data to the key.
func (p *ConsulProvider) Put(ctx context.Context, data []byte) error {
	pair := &api.KVPair{Key: p.key, Value: data}
	if _, err := p.client.KV().Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to write consul key %s: %w", p.key, err)
	}
	return nil
}

var _ Publisher = (*ConsulProvider)(nil)
