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

// Package server embeds the decision filter in an HTTP reverse proxy: every
// request runs through the filter before being forwarded upstream or
// answered with the synthesized denial.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/tetratelabs/run"
	"github.com/tetratelabs/telemetry"

	"github.com/istio-ecosystem/authfilter/internal"
	"github.com/istio-ecosystem/authfilter/internal/extauthz"
	"github.com/istio-ecosystem/authfilter/internal/filter"
)

var (
	_ run.Initializer = (*Server)(nil)
	_ run.Config      = (*Server)(nil)
	_ run.PreRunner   = (*Server)(nil)
	_ run.Service     = (*Server)(nil)
)

var ErrInvalidAddress = errors.New("invalid address")

// Server is the proxy unit in the run.Group.
type Server struct {
	log  telemetry.Logger
	cfg  *internal.Config
	addr string

	filterCfg *filter.FilterConfig
	router    *router
	proxy     *httputil.ReverseProxy
	server    *http.Server
	channel   *extauthz.GrpcChannel

	// Stats allows injecting a pre-built counter set. It is meant to be
	// used in tests; when nil the default Prometheus registerer is used.
	Stats *filter.Stats

	// NewClient allows overriding the per-request authorization client.
	// It is meant to be used in tests; when nil a gRPC channel to the
	// configured target is established.
	NewClient func() extauthz.Client

	// Listen allows overriding the default listener. It is meant to
	// be used in tests.
	Listen func() (net.Listener, error)
}

// New creates the proxy server unit for the given configuration.
func New(cfg *internal.Config) *Server {
	return &Server{
		log: internal.Logger(internal.Server),
		cfg: cfg,
	}
}

// Name returns the name of the unit in the run.Group.
func (s *Server) Name() string { return "HTTP Proxy Server" }

// FlagSet returns the flags used to customize the server.
func (s *Server) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("HTTP Proxy Server flags")
	flags.StringVar(&s.addr, "listen-address", ":8080", "listen address")
	return flags
}

// Validate the server configuration.
func (s *Server) Validate() error {
	if _, _, err := net.SplitHostPort(s.addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}

// Initialize the server.
func (s *Server) Initialize() {
	if s.Listen == nil {
		s.Listen = func() (net.Listener, error) {
			return net.Listen("tcp", s.addr)
		}
	}
}

// PreRun builds the filter configuration, the router, the upstream proxy and
// the authorization service channel.
func (s *Server) PreRun() error {
	if s.Stats == nil {
		s.Stats = filter.NewStats(nil)
	}

	s.filterCfg = filter.NewFilterConfig(filter.Settings{
		FailureModeAllow:            s.cfg.ExtAuthz.FailureModeAllow,
		AllowedRequestHeaders:       s.cfg.ExtAuthz.AllowedRequestHeaders,
		AllowedAuthorizationHeaders: s.cfg.ExtAuthz.AllowedAuthorizationHeaders,
		ContextExtensions:           s.cfg.ExtAuthz.ContextExtensions,
	}, s.Stats)

	s.router = newRouter(s.cfg)

	if s.NewClient == nil {
		channel, err := extauthz.NewGrpcChannel(extauthz.GrpcService{
			Target:                          s.cfg.ExtAuthz.Target,
			Timeout:                         s.cfg.ExtAuthz.Timeout,
			TrustedCertificateAuthorityFile: s.cfg.ExtAuthz.TrustedCertificateAuthorityFile,
		})
		if err != nil {
			return err
		}
		s.channel = channel
		s.NewClient = channel.NewClient
	}

	// The upstream URL has been validated with the rest of the config.
	upstream, err := url.Parse(s.cfg.Upstream)
	if err != nil {
		return err
	}
	s.proxy = httputil.NewSingleHostReverseProxy(upstream)

	handler := PropagateRequestID(NewLogMiddleware().Handler(http.HandlerFunc(s.handleRequest)))
	s.server = &http.Server{Handler: handler}

	return nil
}

// Serve starts the proxy server.
func (s *Server) Serve() error {
	l, err := s.Listen()
	if err != nil {
		return err
	}
	s.log.Info("starting proxy server", "addr", s.addr, "upstream", s.cfg.Upstream)
	if err := s.server.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GracefulStop stops the server and releases the authorization channel.
func (s *Server) GracefulStop() {
	s.log.Info("stopping proxy server")
	if s.server != nil {
		_ = s.server.Shutdown(context.Background())
	}
	if s.channel != nil {
		_ = s.channel.Close()
	}
}
