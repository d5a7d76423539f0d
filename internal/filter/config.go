// Copyright 2025 Tetrate
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

package filter

import (
	"strings"

	"github.com/istio-ecosystem/authfilter/internal/http"
)

// FilterName keys the per-route overlay lookup on routes and virtual hosts.
const FilterName = "authfilter.ext_authz"

// Settings are the validated filter settings. Parsing and validation happen
// upstream of this package.
type Settings struct {
	FailureModeAllow            bool
	AllowedRequestHeaders       []string
	AllowedAuthorizationHeaders []string
	ContextExtensions           map[string]string
}

// FilterConfig is the process-wide filter configuration. It is immutable and
// shared read-only across all requests; it is never rebuilt per request.
type FilterConfig struct {
	allowedRequestHeaders       map[string]struct{}
	allowedAuthorizationHeaders map[string]struct{}
	contextExtensions           map[string]string
	failureModeAllow            bool
	stats                       *Stats
}

// NewFilterConfig builds the immutable configuration from settings.
func NewFilterConfig(s Settings, stats *Stats) *FilterConfig {
	allowedRequest := map[string]struct{}{
		http.HeaderPath:      {},
		http.HeaderMethod:    {},
		http.HeaderAuthority: {},
	}
	for _, name := range s.AllowedRequestHeaders {
		allowedRequest[strings.ToLower(name)] = struct{}{}
	}

	allowedAuthorization := make(map[string]struct{}, len(s.AllowedAuthorizationHeaders))
	for _, name := range s.AllowedAuthorizationHeaders {
		allowedAuthorization[strings.ToLower(name)] = struct{}{}
	}

	extensions := make(map[string]string, len(s.ContextExtensions))
	for k, v := range s.ContextExtensions {
		extensions[k] = v
	}

	return &FilterConfig{
		allowedRequestHeaders:       allowedRequest,
		allowedAuthorizationHeaders: allowedAuthorization,
		contextExtensions:           extensions,
		failureModeAllow:            s.FailureModeAllow,
		stats:                       stats,
	}
}

// AllowedRequestHeaders is the set of request header names forwarded in a
// check request. It always contains the path, method and host pseudo-headers.
// Callers must not rely on any ordering beyond set membership.
func (c *FilterConfig) AllowedRequestHeaders() map[string]struct{} {
	return c.allowedRequestHeaders
}

// AllowedAuthorizationHeaders is the set of authorization service response
// header names eligible for forwarding by the transport client.
func (c *FilterConfig) AllowedAuthorizationHeaders() map[string]struct{} {
	return c.allowedAuthorizationHeaders
}

// ContextExtensions are the default context extensions attached to every
// check request, before the per-route overlays are applied.
func (c *FilterConfig) ContextExtensions() map[string]string {
	return c.contextExtensions
}

// FailureModeAllow returns whether a check error lets the request continue.
func (c *FilterConfig) FailureModeAllow() bool { return c.failureModeAllow }

// Stats returns the counters shared by all filter instances.
func (c *FilterConfig) Stats() *Stats { return c.stats }

// PerRouteConfig is a per-scope configuration overlay, present at the
// virtual-host and route levels.
type PerRouteConfig struct {
	// Disabled turns the filter off for the scope when set. An explicit
	// false overrides a previous true.
	Disabled *bool
	// ContextExtensions are merged into the check request extensions.
	ContextExtensions map[string]string
}

// Merge returns the combination of c with the more specific overlay applied
// last: every extension in specific overwrites or inserts into the result,
// and a set Disabled overwrites unconditionally. Both receivers are left
// untouched. Applying overlays out of most-specific-last order is a
// correctness bug.
func (c *PerRouteConfig) Merge(specific *PerRouteConfig) *PerRouteConfig {
	merged := &PerRouteConfig{
		ContextExtensions: make(map[string]string),
	}
	if c != nil {
		merged.Disabled = c.Disabled
		for k, v := range c.ContextExtensions {
			merged.ContextExtensions[k] = v
		}
	}
	if specific != nil {
		if specific.Disabled != nil {
			merged.Disabled = specific.Disabled
		}
		for k, v := range specific.ContextExtensions {
			merged.ContextExtensions[k] = v
		}
	}
	return merged
}

// IsDisabled returns whether the overlay explicitly disables the filter.
func (c *PerRouteConfig) IsDisabled() bool {
	return c != nil && c.Disabled != nil && *c.Disabled
}
