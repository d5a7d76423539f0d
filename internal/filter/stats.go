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

package filter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats holds the filter counters, labeled by authorization cluster.
type Stats struct {
	ok                 *prometheus.CounterVec
	denied             *prometheus.CounterVec
	errors             *prometheus.CounterVec
	failureModeAllowed *prometheus.CounterVec

	// Generic upstream request counters charged on denials, by status code
	// class and by exact status code.
	upstreamRqClass *prometheus.CounterVec
	upstreamRqCode  *prometheus.CounterVec
}

// NewStats creates and registers the filter counters. A nil registerer uses
// the default Prometheus registerer.
func NewStats(reg prometheus.Registerer) *Stats {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Stats{
		ok: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ext_authz_ok_total",
			Help: "Total number of requests allowed by the authorization service.",
		}, []string{"cluster"}),
		denied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ext_authz_denied_total",
			Help: "Total number of requests denied by the authorization service.",
		}, []string{"cluster"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ext_authz_error_total",
			Help: "Total number of authorization checks that failed.",
		}, []string{"cluster"}),
		failureModeAllowed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ext_authz_failure_mode_allowed_total",
			Help: "Total number of failed checks allowed through by the failure mode policy.",
		}, []string{"cluster"}),
		upstreamRqClass: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_rq_class_total",
			Help: "Total number of synthesized responses by status code class.",
		}, []string{"cluster", "class"}),
		upstreamRqCode: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_rq_total",
			Help: "Total number of synthesized responses by status code.",
		}, []string{"cluster", "code"}),
	}
}

// ForCluster returns the counter scope for the given cluster.
func (s *Stats) ForCluster(name string) ClusterStats {
	return ClusterStats{stats: s, cluster: name}
}

// ClusterStats increments the filter counters for a single cluster.
type ClusterStats struct {
	stats   *Stats
	cluster string
}

func (c ClusterStats) IncOK() { c.stats.ok.WithLabelValues(c.cluster).Inc() }

func (c ClusterStats) IncDenied() { c.stats.denied.WithLabelValues(c.cluster).Inc() }

func (c ClusterStats) IncError() { c.stats.errors.WithLabelValues(c.cluster).Inc() }

func (c ClusterStats) IncFailureModeAllowed() {
	c.stats.failureModeAllowed.WithLabelValues(c.cluster).Inc()
}

// ChargeUpstreamRq records a synthesized response status code on the generic
// upstream request counters, both the class (e.g. 4xx) and the exact code.
func (c ClusterStats) ChargeUpstreamRq(code int) {
	class := strconv.Itoa(code/100) + "xx"
	c.stats.upstreamRqClass.WithLabelValues(c.cluster, class).Inc()
	c.stats.upstreamRqCode.WithLabelValues(c.cluster, strconv.Itoa(code)).Inc()
}
