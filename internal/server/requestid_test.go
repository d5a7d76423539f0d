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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/telemetry"

	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

func TestPropagateRequestId(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    []interface{}
	}{
		{"no-x-request-id", nil, nil},
		{"empty-x-request-id", map[string]string{internalhttp.HeaderXRequestID: ""}, nil},
		{
			"with-x-request-id",
			map[string]string{internalhttp.HeaderXRequestID: "test-request-id"},
			[]interface{}{internalhttp.HeaderXRequestID, "test-request-id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PropagateRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				kvs := telemetry.KeyValuesFromContext(r.Context())
				require.Equal(t, tt.want, kvs)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
		})
	}
}
