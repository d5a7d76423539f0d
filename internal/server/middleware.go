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
	"net"
	"net/http"
	"strings"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	"github.com/istio-ecosystem/authfilter/internal"
	"github.com/istio-ecosystem/authfilter/internal/extauthz"
	"github.com/istio-ecosystem/authfilter/internal/filter"
	internalhttp "github.com/istio-ecosystem/authfilter/internal/http"
)

// router resolves requests to the configured prefix routes. Every route
// shares the single configured virtual host.
type router struct {
	vhost  *virtualHost
	routes []*route
}

func newRouter(cfg *internal.Config) *router {
	vhost := &virtualHost{}
	if cfg.VirtualHost != nil {
		vhost.overlay = overlayFromConfig(cfg.VirtualHost)
	}

	r := &router{vhost: vhost}
	for _, rc := range cfg.Routes {
		r.routes = append(r.routes, &route{
			vhost:   vhost,
			prefix:  rc.Prefix,
			overlay: overlayFromConfig(&rc.OverlayConfig),
		})
	}
	// Requests always resolve to a route; unmatched paths fall through to
	// the catch-all with no route-level overlay.
	r.routes = append(r.routes, &route{vhost: vhost, prefix: "/"})

	return r
}

// Resolve returns the first route whose prefix matches the path.
func (r *router) Resolve(path string) filter.Route {
	for _, rt := range r.routes {
		if strings.HasPrefix(path, rt.prefix) {
			return rt
		}
	}
	return nil
}

func overlayFromConfig(o *internal.OverlayConfig) *filter.PerRouteConfig {
	return &filter.PerRouteConfig{
		Disabled:          o.Disabled,
		ContextExtensions: o.ContextExtensions,
	}
}

type virtualHost struct {
	overlay *filter.PerRouteConfig
}

func (v *virtualHost) PerFilterConfig(name string) *filter.PerRouteConfig {
	if name != filter.FilterName {
		return nil
	}
	return v.overlay
}

type route struct {
	vhost   *virtualHost
	prefix  string
	overlay *filter.PerRouteConfig
}

func (r *route) VirtualHost() filter.VirtualHost { return r.vhost }

func (r *route) PerFilterConfig(name string) *filter.PerRouteConfig {
	if name != filter.FilterName {
		return nil
	}
	return r.overlay
}

type connection struct {
	local  net.Addr
	remote net.Addr
}

func (c connection) LocalAddr() net.Addr  { return c.local }
func (c connection) RemoteAddr() net.Addr { return c.remote }

type clusterInfo string

func (c clusterInfo) Name() string { return string(c) }

// streamInfo records the outcome flags set on the request stream.
type streamInfo struct {
	flags []filter.ResponseFlag
}

func (s *streamInfo) SetResponseFlag(f filter.ResponseFlag) {
	s.flags = append(s.flags, f)
}

type localReply struct {
	statusCode int
	body       string
	headers    *internalhttp.HeaderMap
}

// pipeline adapts a single HTTP request to the callback surface of the
// decision filter. Every filter call happens on the serving goroutine, so the
// filter sees the serialized event order it requires.
type pipeline struct {
	ctx     context.Context
	conn    connection
	route   filter.Route
	cluster filter.ClusterInfo
	info    streamInfo

	reply *localReply
}

var _ filter.Callbacks = (*pipeline)(nil)

func newPipeline(r *http.Request, route filter.Route, cluster string) *pipeline {
	local, _ := r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	remote, _ := net.ResolveTCPAddr("tcp", r.RemoteAddr)

	p := &pipeline{
		ctx:     r.Context(),
		conn:    connection{local: local},
		route:   route,
		cluster: clusterInfo(cluster),
	}
	if remote != nil {
		p.conn.remote = remote
	}
	return p
}

func (p *pipeline) Context() context.Context        { return p.ctx }
func (p *pipeline) Connection() filter.Connection   { return p.conn }
func (p *pipeline) Route() filter.Route             { return p.route }
func (p *pipeline) ClusterInfo() filter.ClusterInfo { return p.cluster }
func (p *pipeline) StreamInfo() filter.StreamInfo   { return &p.info }

// ContinueDecoding is a no-op: the serving goroutine resumes by itself once
// the decision has been applied.
func (p *pipeline) ContinueDecoding() {}

func (p *pipeline) SendLocalReply(statusCode int, body string, headers *internalhttp.HeaderMap) {
	p.reply = &localReply{statusCode: statusCode, body: body, headers: headers}
}

// pipelineClient reroutes the check completion through a channel instead of
// invoking the filter from the transport goroutine. The serving goroutine
// receives the response and applies it, keeping all filter calls on a single
// goroutine per request.
type pipelineClient struct {
	client      extauthz.Client
	completions completionChan
}

func (c pipelineClient) Check(ctx context.Context, _ extauthz.RequestCallbacks, req *authv3.CheckRequest) {
	c.client.Check(ctx, c.completions, req)
}

func (c pipelineClient) Cancel() { c.client.Cancel() }

type completionChan chan *extauthz.Response

func (c completionChan) OnComplete(resp *extauthz.Response) { c <- resp }

// handleRequest runs the decision filter for the request and then either
// forwards it upstream or writes the synthesized denial.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	headers := requestHeaderMap(r)
	p := newPipeline(r, s.router.Resolve(r.URL.Path), s.cfg.ExtAuthz.Cluster)

	completions := make(completionChan, 1)
	f := filter.New(s.filterCfg, pipelineClient{client: s.NewClient(), completions: completions}, p)
	defer f.OnDestroy()

	if f.DecodeHeaders(headers, r.Body == http.NoBody) == filter.StopIteration {
		select {
		case resp := <-completions:
			f.OnComplete(resp)
		case <-r.Context().Done():
			return
		}
	}

	if p.reply != nil {
		writeLocalReply(w, p.reply)
		return
	}

	applyHeaderMap(r, headers)
	s.proxy.ServeHTTP(w, r)
}

// requestHeaderMap builds the filter's view of the request headers: the
// pseudo-headers followed by the regular headers, names lowercased.
func requestHeaderMap(r *http.Request) *internalhttp.HeaderMap {
	headers := internalhttp.NewHeaderMap(
		internalhttp.HeaderEntry{Name: internalhttp.HeaderMethod, Value: r.Method},
		internalhttp.HeaderEntry{Name: internalhttp.HeaderAuthority, Value: r.Host},
		internalhttp.HeaderEntry{Name: internalhttp.HeaderPath, Value: r.URL.RequestURI()},
	)
	for name, values := range r.Header {
		for _, value := range values {
			headers.Add(strings.ToLower(name), value)
		}
	}
	return headers
}

// applyHeaderMap replaces the request headers with the post-decision header
// map, so upstream sees the mutations applied by the filter.
func applyHeaderMap(r *http.Request, headers *internalhttp.HeaderMap) {
	r.Header = make(http.Header, headers.Len())
	headers.Range(func(name, value string) bool {
		if !strings.HasPrefix(name, ":") {
			r.Header.Add(name, value)
		}
		return true
	})
}

func writeLocalReply(w http.ResponseWriter, reply *localReply) {
	reply.headers.Range(func(name, value string) bool {
		if !strings.HasPrefix(name, ":") {
			w.Header().Add(name, value)
		}
		return true
	})
	w.WriteHeader(reply.statusCode)
	_, _ = io.WriteString(w, reply.body)
}
