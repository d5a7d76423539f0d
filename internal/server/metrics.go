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
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/run"
	"github.com/tetratelabs/telemetry"

	"github.com/istio-ecosystem/authfilter/internal"
)

var (
	_ run.Config  = (*metricsServer)(nil)
	_ run.Service = (*metricsServer)(nil)
)

type metricsServer struct {
	log    telemetry.Logger
	addr   string
	server *http.Server

	// l allows overriding the default listener. It is meant to
	// be used in tests.
	l net.Listener
}

// NewMetricsServer creates a server exposing the filter counters in
// Prometheus format.
func NewMetricsServer(gatherer prometheus.Gatherer) run.Unit {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &metricsServer{
		log:    internal.Logger(internal.Server),
		server: &http.Server{Handler: mux},
	}
}

// Name implements run.Unit.
func (ms *metricsServer) Name() string { return "Metrics Server" }

// FlagSet returns the flags used to customize the metrics server.
func (ms *metricsServer) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("Metrics Server flags")
	flags.StringVar(&ms.addr, "metrics-address", ":9090", "metrics server listen address")
	return flags
}

// Validate implements run.Config.
func (ms *metricsServer) Validate() error {
	if _, _, err := net.SplitHostPort(ms.addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}

// Serve implements run.Service.
func (ms *metricsServer) Serve() error {
	if ms.l == nil {
		var err error
		ms.l, err = net.Listen("tcp", ms.addr)
		if err != nil {
			return err
		}
	}

	ms.log.Info("starting metrics server", "addr", ms.l.Addr())
	return ms.server.Serve(ms.l)
}

// GracefulStop implements run.Service.
func (ms *metricsServer) GracefulStop() {
	ms.log.Info("stopping metrics server")
	_ = ms.server.Close()
}
