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

// Package ratelimit enforces fixed-window usage limits per caller on the
// knowledge HTTP API.
//
// A Limiter evaluates every configured rule that applies to a request's
// scope. Requests are admitted only when all of them have room left, and
// admitted requests are charged against all of them at once:
//
//	limiter, _ := ratelimit.New(cfg.Server.RateLimit, ratelimit.NewMemoryStore())
//	r.With(ratelimit.Middleware(limiter, ratelimit.ScopeSearch)).Post("/search", search)
//
// Callers over a limit get 429 with Retry-After and X-RateLimit-* headers.
package ratelimit

import (
	"fmt"
	"time"
)

// Scope groups the operations a rule applies to.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeSearch Scope = "search"
	ScopeWrite  Scope = "write"
)

// TimeWindow is the length of a fixed rate limit window.
type TimeWindow string

const (
	WindowSecond TimeWindow = "second"
	WindowMinute TimeWindow = "minute"
	WindowHour   TimeWindow = "hour"
	WindowDay    TimeWindow = "day"
)

var windowDurations = map[TimeWindow]time.Duration{
	WindowSecond: time.Second,
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

// Duration returns the window length, or zero for unknown windows.
func (w TimeWindow) Duration() time.Duration {
	return windowDurations[w]
}

// LimitType is what a rule counts.
type LimitType string

const (
	LimitTypeCount LimitType = "count"
	LimitTypeBytes LimitType = "bytes"
)

// Usage is the state of one rule for one caller.
type Usage struct {
	Scope     Scope      `json:"scope"`
	LimitType LimitType  `json:"type"`
	Window    TimeWindow `json:"window"`
	Current   int64      `json:"current"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	WindowEnd time.Time  `json:"resets_at"`
}

// Percentage of the limit consumed.
func (u Usage) Percentage() float64 {
	return float64(u.Current) / float64(u.Limit) * 100
}

// CheckResult reports whether a request was admitted.
type CheckResult struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	Usages     []Usage       `json:"usage,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// Tightest returns the usage closest to its limit, or nil without usages.
func (r *CheckResult) Tightest() *Usage {
	var tightest *Usage
	for i := range r.Usages {
		if tightest == nil || r.Usages[i].Percentage() > tightest.Percentage() {
			tightest = &r.Usages[i]
		}
	}
	return tightest
}

func exceeded(u Usage) string {
	return fmt.Sprintf("%s %s limit exceeded for %s window (%d/%d)", u.Scope, u.LimitType, u.Window, u.Current, u.Limit)
}
