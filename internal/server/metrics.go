/*
Copyright 2025 The Pebble Webhook Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahoma/pebble-webhook/pkg/metrics"
)

// MetricsServer serves the Prometheus metrics endpoint from a dedicated
// registry holding the webhook's admission metrics and process collectors.
type MetricsServer struct {
	registry *prometheus.Registry
}

// NewMetricsServer creates a new metrics server instance.
func NewMetricsServer() *MetricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(registry)

	return &MetricsServer{registry: registry}
}

// MetricsHandler implements the /metrics endpoint.
func (m *MetricsServer) MetricsHandler(c *gin.Context) {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
		Registry:      m.registry,
		Timeout:       10 * time.Second,
	})
	gin.WrapH(handler)(c)
}

// SetupRoutes registers the metrics route on the given engine.
func (m *MetricsServer) SetupRoutes(router *gin.Engine) {
	router.GET("/metrics", m.MetricsHandler)
}
