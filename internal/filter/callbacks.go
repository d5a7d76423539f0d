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
	"context"
	"net"

	"github.com/istio-ecosystem/authfilter/internal/http"
)

// Status is returned by the stage events to signal pause or resume of the
// request pipeline iteration.
type Status int

const (
	// Continue lets the pipeline keep iterating.
	Continue Status = iota
	// StopIteration pauses iteration; the pipeline buffers further events.
	StopIteration
	// StopIterationAndWatermark pauses iteration and applies buffering
	// watermarks to the data being held.
	StopIterationAndWatermark
)

// ResponseFlag marks the reason a stream was finished on its outcome record.
type ResponseFlag int

// FlagUnauthorizedExternalService marks a stream finished by an external
// authorization denial.
const FlagUnauthorizedExternalService ResponseFlag = iota

// Connection exposes the downstream connection addresses.
type Connection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// StreamInfo is the outcome record of the request stream.
type StreamInfo interface {
	SetResponseFlag(ResponseFlag)
}

// ClusterInfo identifies the resolved authorization service cluster.
type ClusterInfo interface {
	Name() string
}

// VirtualHost is the virtual-host scope of the resolved route.
type VirtualHost interface {
	// PerFilterConfig returns the overlay registered for the given filter
	// name at the virtual-host level, or nil.
	PerFilterConfig(name string) *PerRouteConfig
}

// Route is the route resolved for the current request.
type Route interface {
	// VirtualHost returns the enclosing virtual host, or nil.
	VirtualHost() VirtualHost
	// PerFilterConfig returns the overlay registered for the given filter
	// name at the route level, or nil.
	PerFilterConfig(name string) *PerRouteConfig
}

// Callbacks is the surface the pipeline offers to the filter. The pipeline
// serializes stage events and the check completion, so implementations are
// called from a single logical thread per request.
type Callbacks interface {
	// Context of the request stream, cancelled when the stream goes away.
	Context() context.Context
	// Connection of the downstream peer.
	Connection() Connection
	// Route resolved for the request, or nil when there is none.
	Route() Route
	// ClusterInfo of the authorization service, or nil when the cluster
	// cannot be resolved.
	ClusterInfo() ClusterInfo
	// StreamInfo is the outcome record of the stream.
	StreamInfo() StreamInfo
	// ContinueDecoding resumes forward iteration after a pause.
	ContinueDecoding()
	// SendLocalReply emits a response synthesized by the filter directly to
	// the downstream client. The headers do not include the status
	// pseudo-header. No other filter API may be invoked afterwards.
	SendLocalReply(statusCode int, body string, headers *http.HeaderMap)
}
