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

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

// ErrNoIdentifier is returned when a caller cannot be identified.
var ErrNoIdentifier = errors.New("rate limit identifier is empty")

const sweepInterval = time.Minute

type rule struct {
	scope     Scope
	limitType LimitType
	window    TimeWindow
	limit     int64
}

func (r rule) appliesTo(scope Scope) bool {
	return r.scope == ScopeAll || r.scope == scope
}

// Limiter admits or rejects requests against the configured rules.
type Limiter struct {
	rules []rule
	store Store
	now   func() time.Time

	// mu makes check-then-charge atomic across rules.
	mu        sync.Mutex
	lastSweep time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns nil when cfg is nil or disabled. A nil *Limiter admits
// everything.
func New(cfg *config.RateLimitConfig, store Store, opts ...Option) (*Limiter, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	l := &Limiter{store: store, now: time.Now}
	for _, r := range cfg.Limits {
		l.rules = append(l.rules, rule{
			scope:     Scope(r.Scope),
			limitType: LimitType(r.Type),
			window:    TimeWindow(r.Window),
			limit:     r.Limit,
		})
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow charges one request of size bytes to identifier when every rule
// for scope has room for it. Rejected requests are not charged.
func (l *Limiter) Allow(ctx context.Context, scope Scope, identifier string, bytes int64) (*CheckResult, error) {
	if l == nil {
		return &CheckResult{Allowed: true}, nil
	}
	if identifier == "" {
		return nil, ErrNoIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(ctx, now)

	result := &CheckResult{Allowed: true}
	var charges []Key
	var amounts []int64
	for _, r := range l.rules {
		if !r.appliesTo(scope) {
			continue
		}
		amount := int64(1)
		if r.limitType == LimitTypeBytes {
			amount = max(bytes, 0)
		}
		key := Key{Scope: r.scope, Identifier: identifier, LimitType: r.limitType, Window: r.window}
		current, end, err := l.store.Get(ctx, key, now)
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s/%s: %w", r.limitType, r.window, err)
		}
		u := Usage{Scope: r.scope, LimitType: r.limitType, Window: r.window, Current: current, Limit: r.limit, WindowEnd: end}
		if current+amount > r.limit {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = exceeded(u)
			}
			if wait := end.Sub(now); wait > result.RetryAfter {
				result.RetryAfter = wait
			}
		}
		result.Usages = append(result.Usages, u)
		charges = append(charges, key)
		amounts = append(amounts, amount)
	}

	if result.Allowed {
		for i, key := range charges {
			current, end, err := l.store.Add(ctx, key, amounts[i], now)
			if err != nil {
				return nil, fmt.Errorf("failed to record usage: %w", err)
			}
			result.Usages[i].Current, result.Usages[i].WindowEnd = current, end
		}
	}
	for i := range result.Usages {
		u := &result.Usages[i]
		u.Remaining = max(u.Limit-u.Current, 0)
	}
	return result, nil
}

func (l *Limiter) sweep(ctx context.Context, now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	_ = l.store.DeleteExpired(ctx, now)
}
