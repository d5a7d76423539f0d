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

package server

import (
	"net/http"

	"github.com/tetratelabs/telemetry"

	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// PropagateRequestID is an HTTP middleware that propagates the request id
// header to the logging context, so all log entries for a request carry it.
func PropagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(internalhttp.HeaderXRequestID); id != "" {
			ctx := telemetry.KeyValuesToContext(r.Context(), internalhttp.HeaderXRequestID, id)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
