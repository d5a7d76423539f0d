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

// Package filter implements the decision core of the external-authorization
// filter: a per-request state machine that consults the authorization
// service on header arrival, pauses the pipeline while the decision is
// pending, and either mutates the upstream request or synthesizes the denial
// response.
package filter

import (
	nethttp "net/http"
	"strconv"

	"github.com/tetratelabs/telemetry"

	"github.com/istio-ecosystem/authfilter/internal"
	"github.com/istio-ecosystem/authfilter/internal/extauthz"
	"github.com/istio-ecosystem/authfilter/internal/http"
)

type state int

const (
	stateNotStarted state = iota
	stateCalling
	stateComplete
	stateDestroyed
)

type filterReturn int

const (
	returnContinue filterReturn = iota
	returnStop
)

var _ extauthz.RequestCallbacks = (*Filter)(nil)

// Filter is the per-request decision filter. Exactly one instance handles a
// request, with at most one outstanding check at a time. The pipeline
// serializes stage events and the check completion, so no internal locking
// is needed.
type Filter struct {
	log       telemetry.Logger
	config    *FilterConfig
	client    extauthz.Client
	callbacks Callbacks

	state          state
	filterReturn   filterReturn
	initiatingCall bool
	clusterStats   ClusterStats
	requestHeaders *http.HeaderMap
}

// New creates a filter for a single request.
func New(config *FilterConfig, client extauthz.Client, callbacks Callbacks) *Filter {
	return &Filter{
		log:       internal.Logger(internal.Filter),
		config:    config,
		client:    client,
		callbacks: callbacks,
	}
}

// DecodeHeaders handles the header-stage arrival. When the request is
// routable and the filter is enabled for the route, it issues the check and
// pauses iteration until the decision arrives.
func (f *Filter) DecodeHeaders(headers *http.HeaderMap, _ bool) Status {
	route := f.callbacks.Route()
	if route == nil {
		return Continue
	}

	effective := f.effectivePerRouteConfig(route)
	if effective.IsDisabled() {
		return Continue
	}

	cluster := f.callbacks.ClusterInfo()
	if cluster == nil {
		return Continue
	}

	conn := f.callbacks.Connection()
	req := extauthz.BuildCheckRequest(
		conn.LocalAddr(), conn.RemoteAddr(),
		headers, f.config.AllowedRequestHeaders(), effective.ContextExtensions,
	)

	f.clusterStats = f.config.Stats().ForCluster(cluster.Name())
	f.requestHeaders = headers
	f.state = stateCalling
	f.filterReturn = returnStop

	// The completion may fire on this very call stack, so guard the
	// continue-decoding callback with initiatingCall: when the check
	// completes before returning, the status below already resumes the
	// pipeline.
	f.initiatingCall = true
	f.client.Check(f.callbacks.Context(), f, req)
	f.initiatingCall = false

	if f.filterReturn == returnStop {
		return StopIteration
	}
	return Continue
}

// DecodeData handles a body-stage arrival. While a decision is pending, or
// after a denial, the data is held back under watermark.
func (f *Filter) DecodeData(_ []byte, _ bool) Status {
	if f.state == stateCalling || f.filterReturn == returnStop {
		return StopIterationAndWatermark
	}
	return Continue
}

// DecodeTrailers handles the trailer-stage arrival.
func (f *Filter) DecodeTrailers(_ *http.HeaderMap) Status {
	if f.state == stateCalling || f.filterReturn == returnStop {
		return StopIteration
	}
	return Continue
}

// OnDestroy tears the filter down. An outstanding check is cancelled and its
// future completion discarded. Safe to call from any state, idempotently.
func (f *Filter) OnDestroy() {
	if f.state == stateCalling {
		f.client.Cancel()
	}
	f.state = stateDestroyed
}

// OnComplete receives the authorization decision. It runs either inside the
// Check call or at a later point; both produce the same observable behavior.
// The Response belongs to this invocation only: everything the filter needs
// is copied out before control yields.
func (f *Filter) OnComplete(resp *extauthz.Response) {
	if f.state != stateCalling {
		return
	}
	f.state = stateComplete

	log := f.log.Context(f.callbacks.Context())

	switch resp.Status {
	case extauthz.CheckOK:
		f.clusterStats.IncOK()
		log.Debug("request authorized", "headers_to_append", len(resp.HeadersToAppend), "headers_to_add", len(resp.HeadersToAdd))
		// Append first, then add, so an add always has the last word on a
		// given name.
		for _, h := range resp.HeadersToAppend {
			f.requestHeaders.AppendToValue(h.Name, h.Value)
		}
		for _, h := range resp.HeadersToAdd {
			f.requestHeaders.Set(h.Name, h.Value)
		}
		f.continueDecoding()

	case extauthz.CheckDenied:
		f.clusterStats.IncDenied()
		code := resp.DeniedStatusCode()
		f.clusterStats.ChargeUpstreamRq(code)
		log.Debug("request denied", "status", code)
		f.sendDeniedReply(code, resp.Body, resp.HeadersToAdd)

	case extauthz.CheckError:
		f.clusterStats.IncError()
		if f.config.FailureModeAllow() {
			f.clusterStats.IncFailureModeAllowed()
			log.Debug("check failed, allowed by failure mode")
			f.continueDecoding()
			return
		}
		log.Debug("check failed, denied by failure mode")
		f.sendDeniedReply(nethttp.StatusForbidden, "", nil)
	}
}

// effectivePerRouteConfig folds the global defaults with the virtual-host
// and route overlays, most specific last.
func (f *Filter) effectivePerRouteConfig(route Route) *PerRouteConfig {
	effective := &PerRouteConfig{ContextExtensions: f.config.ContextExtensions()}
	if vh := route.VirtualHost(); vh != nil {
		effective = effective.Merge(vh.PerFilterConfig(FilterName))
	}
	return effective.Merge(route.PerFilterConfig(FilterName))
}

func (f *Filter) continueDecoding() {
	f.filterReturn = returnContinue
	if !f.initiatingCall {
		f.callbacks.ContinueDecoding()
	}
}

// sendDeniedReply synthesizes the denial response. The header values are
// copied into a header map owned by the filter before the reply is emitted,
// so releasing the check response afterwards cannot corrupt the reply.
func (f *Filter) sendDeniedReply(code int, body string, headersToAdd []http.HeaderEntry) {
	headers := http.NewHeaderMap()
	if body != "" {
		headers.Set(http.HeaderContentLength, strconv.Itoa(len(body)))
		headers.Set(http.HeaderContentType, http.HeaderContentTypeText)
	}
	for _, h := range headersToAdd {
		headers.Set(h.Name, h.Value)
	}

	f.filterReturn = returnStop
	f.callbacks.SendLocalReply(code, body, headers)
	f.callbacks.StreamInfo().SetResponseFlag(FlagUnauthorizedExternalService)
}
