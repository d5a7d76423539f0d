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

	"github.com/tetratelabs/run"
	"github.com/tetratelabs/telemetry"

	"github.com/istio-ecosystem/authfilter/internal"
)

const HealthzPath = "/healthz"

var (
	_ http.Handler = (*healthServer)(nil)
	_ run.Config   = (*healthServer)(nil)
	_ run.Service  = (*healthServer)(nil)
)

type healthServer struct {
	log    telemetry.Logger
	addr   string
	server *http.Server

	// l allows overriding the default listener. It is meant to
	// be used in tests.
	l net.Listener
}

// NewHealthServer creates a new health server.
func NewHealthServer() run.Unit {
	hs := &healthServer{
		log: internal.Logger(internal.Health),
	}
	hs.server = &http.Server{Handler: hs}
	return hs
}

// Name implements run.Unit.
func (hs *healthServer) Name() string {
	return "Health Server"
}

// FlagSet returns the flags used to customize the health server.
func (hs *healthServer) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("Health Server flags")
	flags.StringVar(&hs.addr, "health-address", ":10004", "health server listen address")
	return flags
}

// Validate implements run.Config.
func (hs *healthServer) Validate() error {
	if _, _, err := net.SplitHostPort(hs.addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}

// Serve implements run.Service.
func (hs *healthServer) Serve() error {
	// use test listener if set
	if hs.l == nil {
		var err error
		hs.l, err = net.Listen("tcp", hs.addr)
		if err != nil {
			return err
		}
	}

	hs.log.Info("starting health server", "addr", hs.l.Addr(), "path", HealthzPath)
	return hs.server.Serve(hs.l)
}

// GracefulStop implements run.Service.
func (hs *healthServer) GracefulStop() {
	hs.log.Info("stopping health server")
	_ = hs.server.Close()
}

// ServeHTTP implements http.Handler.
func (hs *healthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := hs.log.With("method", r.Method, "path", r.URL.Path)

	if r.Method != http.MethodGet || r.URL.Path != HealthzPath {
		log.Debug("invalid request")
		http.Error(w, fmt.Sprintf("only GET %s is allowed", HealthzPath), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
