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
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/kadirpekel/hectorkb/pkg/auth"
)

// Identify returns the token subject of an authenticated request, or the
// client address.
func Identify(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return ""
	}
	return "addr:" + host
}

// Middleware rejects requests over the limits for scope with 429. Requests
// pass through when l is nil, the caller cannot be identified or the store
// fails.
func Middleware(l *Limiter, scope Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identify(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			result, err := l.Allow(r.Context(), scope, id, r.ContentLength)
			if err != nil {
				slog.Error("Rate limit check failed", "identifier", id, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			setHeaders(w, result)
			if !result.Allowed {
				slog.Warn("Rate limited", "identifier", id, "scope", scope, "reason", result.Reason)
				writeLimited(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, result *CheckResult) {
	u := result.Tightest()
	if u == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(u.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(u.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(u.WindowEnd.Unix(), 10))
}

func writeLimited(w http.ResponseWriter, result *CheckResult) {
	retry := int64(math.Ceil(result.RetryAfter.Seconds()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":               result.Reason,
		"code":                "rate_limit_exceeded",
		"retry_after_seconds": retry,
		"usage":               result.Usages,
	})
}
