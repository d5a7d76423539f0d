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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/istio-ecosystem/authfilter/internal"
	"github.com/istio-ecosystem/authfilter/internal/extauthz"
	"github.com/istio-ecosystem/authfilter/internal/filter"
	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// upstreamRecorder is the proxied backend. It records the headers of the
// last request it received.
type upstreamRecorder struct {
	server  *httptest.Server
	headers chan http.Header
}

func newUpstream(t *testing.T) *upstreamRecorder {
	t.Helper()
	u := &upstreamRecorder{headers: make(chan http.Header, 1)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.headers <- r.Header.Clone()
		_, _ = io.WriteString(w, "upstream")
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestServer(t *testing.T, client extauthz.Client, mutate func(*internal.Config)) (*httptest.Server, *upstreamRecorder) {
	t.Helper()

	upstream := newUpstream(t)
	cfg := &internal.Config{
		Upstream: upstream.server.URL,
		ExtAuthz: internal.ExtAuthzConfig{
			Cluster:               "ext_authz_server",
			Target:                "localhost:9191",
			AllowedRequestHeaders: []string{"authorization"},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	s := New(cfg)
	s.Stats = filter.NewStats(prometheus.NewRegistry())
	s.NewClient = func() extauthz.Client { return client }
	require.NoError(t, s.PreRun())

	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)

	return ts, upstream
}

func get(t *testing.T, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestProxyAllowed(t *testing.T) {
	client := &extauthz.MockClient{Response: &extauthz.Response{
		Status:       extauthz.CheckOK,
		HeadersToAdd: []internalhttp.HeaderEntry{{Name: "x-auth-user", Value: "alice"}},
	}}
	ts, upstream := newTestServer(t, client, nil)

	resp := get(t, ts.URL+"/api", map[string]string{
		"Authorization": "Bearer token",
		"X-Not-Allowed": "hidden",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "upstream", string(body))

	// The upstream sees the header added by the authorization decision.
	seen := <-upstream.headers
	require.Equal(t, "alice", seen.Get("x-auth-user"))

	// The check request only carries the allowed headers.
	checkHeaders := client.LastRequest.GetAttributes().GetRequest().GetHttp().GetHeaders()
	require.Equal(t, "Bearer token", checkHeaders["authorization"])
	require.NotContains(t, checkHeaders, "x-not-allowed")
	require.Equal(t, "GET", client.LastRequest.GetAttributes().GetRequest().GetHttp().GetMethod())
	require.Equal(t, "/api", client.LastRequest.GetAttributes().GetRequest().GetHttp().GetPath())
}

func TestProxyDenied(t *testing.T) {
	client := &extauthz.MockClient{Response: &extauthz.Response{
		Status:       extauthz.CheckDenied,
		StatusCode:   http.StatusUnauthorized,
		Body:         "get out",
		HeadersToAdd: []internalhttp.HeaderEntry{{Name: "www-authenticate", Value: "Bearer"}},
	}}
	ts, upstream := newTestServer(t, client, nil)

	resp := get(t, ts.URL+"/api", nil)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Bearer", resp.Header.Get("www-authenticate"))
	require.Equal(t, internalhttp.HeaderContentTypeText, resp.Header.Get("content-type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "get out", string(body))

	require.Empty(t, upstream.headers)
}

func TestRouteDisabled(t *testing.T) {
	disabled := true
	client := &extauthz.MockClient{}
	ts, upstream := newTestServer(t, client, func(cfg *internal.Config) {
		cfg.Routes = []internal.RouteConfig{{
			Prefix:        "/public",
			OverlayConfig: internal.OverlayConfig{Disabled: &disabled},
		}}
	})

	resp := get(t, ts.URL+"/public/index.html", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, client.CheckCalls)
	<-upstream.headers
}

func TestContextExtensionsPerRoute(t *testing.T) {
	client := &extauthz.MockClient{Response: &extauthz.Response{Status: extauthz.CheckOK}}
	ts, _ := newTestServer(t, client, func(cfg *internal.Config) {
		cfg.ExtAuthz.ContextExtensions = map[string]string{"global": "g", "shared": "global"}
		cfg.VirtualHost = &internal.OverlayConfig{
			ContextExtensions: map[string]string{"vhost": "v", "shared": "vhost"},
		}
		cfg.Routes = []internal.RouteConfig{{
			Prefix: "/api",
			OverlayConfig: internal.OverlayConfig{
				ContextExtensions: map[string]string{"route": "r", "shared": "route"},
			},
		}}
	})

	get(t, ts.URL+"/api/v1", nil)

	require.Equal(t, map[string]string{
		"global": "g",
		"vhost":  "v",
		"route":  "r",
		"shared": "route",
	}, client.LastRequest.GetAttributes().GetContextExtensions())
}

// asyncClient parks the check and hands the completion callbacks to the test.
type asyncClient struct {
	ready chan extauthz.RequestCallbacks
}

func (c *asyncClient) Check(_ context.Context, callbacks extauthz.RequestCallbacks, _ *authv3.CheckRequest) {
	c.ready <- callbacks
}

func (c *asyncClient) Cancel() {}

func TestAsyncDecision(t *testing.T) {
	client := &asyncClient{ready: make(chan extauthz.RequestCallbacks, 1)}
	ts, upstream := newTestServer(t, client, nil)

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/api")
		if err != nil {
			t.Error(err)
		}
		done <- resp
	}()

	// The request is parked until the decision arrives.
	callbacks := <-client.ready
	select {
	case <-done:
		t.Fatal("request finished before the decision")
	default:
	}

	callbacks.OnComplete(&extauthz.Response{Status: extauthz.CheckOK})

	resp := <-done
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	<-upstream.headers
}

func TestRouterResolve(t *testing.T) {
	disabled := true
	r := newRouter(&internal.Config{
		VirtualHost: &internal.OverlayConfig{ContextExtensions: map[string]string{"k": "v"}},
		Routes: []internal.RouteConfig{
			{Prefix: "/api", OverlayConfig: internal.OverlayConfig{Disabled: &disabled}},
			{Prefix: "/public"},
		},
	})

	api := r.Resolve("/api/v1/things")
	require.NotNil(t, api)
	require.True(t, api.PerFilterConfig(filter.FilterName).IsDisabled())

	public := r.Resolve("/public")
	require.NotNil(t, public)
	require.False(t, public.PerFilterConfig(filter.FilterName).IsDisabled())

	// Unmatched paths resolve to the catch-all with no route overlay.
	other := r.Resolve("/other")
	require.NotNil(t, other)
	require.Nil(t, other.PerFilterConfig(filter.FilterName))

	// All routes share the virtual host overlay.
	require.Equal(t, "v", other.VirtualHost().PerFilterConfig(filter.FilterName).ContextExtensions["k"])

	// Overlays never leak under another filter name.
	require.Nil(t, api.PerFilterConfig("some.other.filter"))
}

func TestServerValidate(t *testing.T) {
	s := New(&internal.Config{})
	s.addr = "not-an-address"
	require.ErrorIs(t, s.Validate(), ErrInvalidAddress)

	s.addr = ":8080"
	require.NoError(t, s.Validate())
}
