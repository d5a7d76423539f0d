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

// Package extauthz contains the client port to the external authorization
// service and the model of its decisions.
package extauthz

import (
	"context"
	"net/http"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// CheckStatus is the outcome of an authorization check.
type CheckStatus int

const (
	// CheckOK means the request is authorized.
	CheckOK CheckStatus = iota
	// CheckDenied means the authorization service rejected the request.
	CheckDenied
	// CheckError means the check itself failed, either because the service
	// could not be reached or because it reported an error.
	CheckError
)

func (s CheckStatus) String() string {
	switch s {
	case CheckOK:
		return "ok"
	case CheckDenied:
		return "denied"
	default:
		return "error"
	}
}

// Response is the decision produced by the authorization service.
//
// The Response handed to RequestCallbacks.OnComplete is owned by the callback
// invocation: the implementation may release or reuse it as soon as
// OnComplete returns, so the callback must copy out everything it needs
// before yielding control.
type Response struct {
	Status CheckStatus

	// StatusCode is the HTTP status for the synthesized denial response.
	// Zero means the default (403 Forbidden).
	StatusCode int

	// HeadersToAdd are applied by overwriting any existing entry with the
	// same name, on the upstream request (allow) or on the synthesized
	// denial response.
	HeadersToAdd []internalhttp.HeaderEntry

	// HeadersToAppend are comma-appended to existing upstream request
	// entries. They are never used on the denial path.
	HeadersToAppend []internalhttp.HeaderEntry

	// Body of the synthesized denial response, if any.
	Body string
}

// DeniedStatusCode returns the HTTP status to use for a denial.
func (r *Response) DeniedStatusCode() int {
	if r.StatusCode == 0 {
		return http.StatusForbidden
	}
	return r.StatusCode
}

// RequestCallbacks is the completion target of a Check call.
type RequestCallbacks interface {
	// OnComplete is invoked exactly once per Check call, either
	// synchronously before Check returns or asynchronously at a later
	// point, unless the call was cancelled first.
	OnComplete(*Response)
}

// Client is the port to the external authorization service. A client is
// bound to a single request: at most one Check call may be outstanding at a
// time.
type Client interface {
	// Check sends the given request to the authorization service and
	// eventually invokes callbacks.OnComplete with the decision.
	Check(ctx context.Context, callbacks RequestCallbacks, req *authv3.CheckRequest)
	// Cancel suppresses the pending completion. It is only valid while a
	// Check call is outstanding.
	Cancel()
}
