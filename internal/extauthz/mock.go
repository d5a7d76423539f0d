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

package extauthz

import (
	"context"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
)

var _ Client = (*MockClient)(nil)

// MockClient is a Client implementation that lets callers control when and
// how a check completes. It is used in tests and local wiring demos.
type MockClient struct {
	// Response, when set, is delivered synchronously inside Check.
	Response *Response

	// Callbacks holds the completion target of the outstanding call when
	// Response is not set, so the owner can complete it later.
	Callbacks RequestCallbacks

	// LastRequest is the check request of the most recent Check call.
	LastRequest *authv3.CheckRequest

	// CheckCalls and CancelCalls count the invocations of each operation.
	CheckCalls  int
	CancelCalls int
}

// Check records the request and either completes synchronously with the
// configured Response or stores the callbacks for a later completion.
func (m *MockClient) Check(_ context.Context, callbacks RequestCallbacks, req *authv3.CheckRequest) {
	m.CheckCalls++
	m.LastRequest = req
	if m.Response != nil {
		callbacks.OnComplete(m.Response)
		return
	}
	m.Callbacks = callbacks
}

// Cancel records the cancellation and discards the stored callbacks.
func (m *MockClient) Cancel() {
	m.CancelCalls++
	m.Callbacks = nil
}
