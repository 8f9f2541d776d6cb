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
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/client-go/kubernetes"
)

// HealthChecker backs the /healthz and /readyz endpoints. The Kubernetes
// client is optional; when nil (outside a cluster, or in tests) the API
// reachability check is skipped.
type HealthChecker struct {
	kubeClient kubernetes.Interface
	certPath   string
	keyPath    string
	startTime  time.Time

	mu              sync.RWMutex
	unhealthyReason string
	notReadyReason  string
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker(kubeClient kubernetes.Interface, certPath, keyPath string) *HealthChecker {
	return &HealthChecker{
		kubeClient: kubeClient,
		certPath:   certPath,
		keyPath:    keyPath,
		startTime:  time.Now(),
	}
}

// HealthzHandler implements the /healthz endpoint. Liveness means the
// process is up and has not been manually marked unhealthy.
func (h *HealthChecker) HealthzHandler(c *gin.Context) {
	h.mu.RLock()
	unhealthyReason := h.unhealthyReason
	h.mu.RUnlock()

	uptime := time.Since(h.startTime)

	if unhealthyReason != "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"reason": unhealthyReason,
			"uptime": uptime.String(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": uptime.String(),
	})
}

// ReadyzHandler implements the /readyz endpoint. The webhook is ready when
// its certificate pair is loadable and, when running in-cluster, the
// apiserver is reachable.
func (h *HealthChecker) ReadyzHandler(c *gin.Context) {
	h.mu.RLock()
	notReadyReason := h.notReadyReason
	h.mu.RUnlock()

	checks := make(map[string]string)
	ready := true

	if notReadyReason != "" {
		checks["manual-check"] = fmt.Sprintf("not ready: %s", notReadyReason)
		ready = false
	}

	if err := h.checkCertificates(); err != nil {
		checks["certificates"] = fmt.Sprintf("failed: %v", err)
		ready = false
	} else {
		checks["certificates"] = "ok"
	}

	if h.kubeClient != nil {
		if err := h.checkKubernetesAPI(); err != nil {
			checks["kubernetes-api"] = fmt.Sprintf("failed: %v", err)
			ready = false
		} else {
			checks["kubernetes-api"] = "ok"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status": status,
		"checks": checks,
		"uptime": time.Since(h.startTime).String(),
	})
}

// SetUnhealthy marks the checker unhealthy for liveness probes.
func (h *HealthChecker) SetUnhealthy(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unhealthyReason = reason
}

// SetNotReady marks the checker not ready for readiness probes.
func (h *HealthChecker) SetNotReady(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notReadyReason = reason
}

// ClearUnhealthy clears the unhealthy state.
func (h *HealthChecker) ClearUnhealthy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unhealthyReason = ""
}

// ClearNotReady clears the not ready state.
func (h *HealthChecker) ClearNotReady() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notReadyReason = ""
}

// checkCertificates verifies the serving pair is still loadable.
func (h *HealthChecker) checkCertificates() error {
	if _, err := tls.LoadX509KeyPair(h.certPath, h.keyPath); err != nil {
		return fmt.Errorf("certificate pair not loadable: %w", err)
	}
	return nil
}

// checkKubernetesAPI verifies the apiserver answers a lightweight call.
func (h *HealthChecker) checkKubernetesAPI() error {
	if _, err := h.kubeClient.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("failed to connect to kubernetes API: %w", err)
	}
	return nil
}

// SetupRoutes registers the probe routes on the given engine.
func (h *HealthChecker) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthzHandler)
	router.GET("/readyz", h.ReadyzHandler)
}
