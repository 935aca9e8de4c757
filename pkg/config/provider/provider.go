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

// Package provider reads raw configuration bytes from a local file, a
// Consul or etcd key, or a ZooKeeper node, and signals when they change.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ErrUnknownType is returned for an unrecognized source type.
var ErrUnknownType = errors.New("unknown config provider type")

var typeNames = map[string]Type{
	"":          TypeFile,
	"file":      TypeFile,
	"consul":    TypeConsul,
	"etcd":      TypeEtcd,
	"zookeeper": TypeZookeeper,
	"zk":        TypeZookeeper,
}

// endpointEnv names the variable consulted when no endpoints are given.
// Consul reads CONSUL_HTTP_ADDR on its own.
var endpointEnv = map[Type]string{
	TypeEtcd:      "ETCD_ENDPOINTS",
	TypeZookeeper: "ZOOKEEPER_ENDPOINTS",
}

// ParseType converts a string to a Type. "zk" is accepted for zookeeper.
func ParseType(s string) (Type, error) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, s)
	}
	return t, nil
}

// IsRemote reports whether the source lives in a KV store.
func (t Type) IsRemote() bool {
	return t == TypeConsul || t == TypeEtcd || t == TypeZookeeper
}

// Provider is a config source. Implementations are safe for concurrent use.
type Provider interface {
	Type() Type

	// Load reads the raw config bytes.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the source changes
	// until ctx is cancelled.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// Publisher is a Provider that can replace the config it serves. Watchers
// of the same source observe the change.
type Publisher interface {
	Provider
	Put(ctx context.Context, data []byte) error
}

// ProviderConfig selects and locates a config source.
type ProviderConfig struct {
	Type Type

	// Path is a file path, a KV key or a znode path.
	Path string

	// Endpoints address the consul agent, etcd cluster or zookeeper
	// ensemble.
	Endpoints []string
}

// New creates the Provider described by opts.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, errors.New("config path is required")
	}

	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = envEndpoints(endpointEnv[opts.Type])
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(endpoints, opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(endpoints, opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(endpoints, opts.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, opts.Type)
	}
}

func envEndpoints(name string) []string {
	if name == "" {
		return nil
	}
	var out []string
	for _, e := range strings.Split(os.Getenv(name), ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
