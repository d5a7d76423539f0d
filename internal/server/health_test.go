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
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"ok", http.MethodGet, HealthzPath, http.StatusOK},
		{"wrong-method", http.MethodPost, HealthzPath, http.StatusBadRequest},
		{"wrong-path", http.MethodGet, "/other", http.StatusBadRequest},
	}

	hs := NewHealthServer().(*healthServer)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			hs.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealthServe(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	hs := NewHealthServer().(*healthServer)
	hs.l = l
	go func() { _ = hs.Serve() }()
	t.Cleanup(hs.GracefulStop)

	resp, err := http.Get("http://" + l.Addr().String() + HealthzPath)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthValidate(t *testing.T) {
	hs := NewHealthServer().(*healthServer)
	hs.addr = "bad"
	require.ErrorIs(t, hs.Validate(), ErrInvalidAddress)

	hs.addr = ":10004"
	require.NoError(t, hs.Validate())
}
