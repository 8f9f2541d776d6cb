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

// Package metrics provides Prometheus metrics for webhook admission
// decisions and protocol failures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Admission result labels.
const (
	// ResultMutated marks requests that produced a patch
	ResultMutated = "mutated"

	// ResultUnchanged marks requests allowed without a patch
	ResultUnchanged = "unchanged"

	// ResultSkipped marks requests for resource kinds the webhook ignores
	ResultSkipped = "skipped"

	// ResultError marks requests that failed
	ResultError = "error"
)

// Decode failure stages.
const (
	// StageEnvelope marks AdmissionReview envelope decode failures
	StageEnvelope = "envelope"

	// StagePod marks embedded pod object decode failures
	StagePod = "pod"
)

var (
	admissionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pebble_webhook_admission_requests_total",
			Help: "Total number of admission requests processed",
		},
		[]string{"resource_kind", "result"},
	)

	mutatedContainers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pebble_webhook_mutated_containers_total",
			Help: "Total number of containers that received the Pebble volume and env vars",
		},
	)

	patchOperations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pebble_webhook_patch_operations_total",
			Help: "Total number of JSON patch operations emitted",
		},
	)

	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pebble_webhook_decode_failures_total",
			Help: "Total number of request decode failures",
		},
		[]string{"stage"},
	)
)

// Register registers all webhook metrics with the given registerer. Metrics
// are initialized with zero values so they appear in scrapes before the
// first admission request.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(admissionRequests, mutatedContainers, patchOperations, decodeFailures)

	for _, result := range []string{ResultMutated, ResultUnchanged, ResultSkipped, ResultError} {
		admissionRequests.WithLabelValues("Pod", result).Add(0)
	}
	for _, stage := range []string{StageEnvelope, StagePod} {
		decodeFailures.WithLabelValues(stage).Add(0)
	}
}

// RecordAdmissionRequest records one processed admission request.
func RecordAdmissionRequest(resourceKind, result string) {
	admissionRequests.WithLabelValues(resourceKind, result).Inc()
}

// RecordMutation records a successful mutation of the given size.
func RecordMutation(containers, patches int) {
	mutatedContainers.Add(float64(containers))
	patchOperations.Add(float64(patches))
}

// RecordDecodeFailure records a decode failure at the given stage.
func RecordDecodeFailure(stage string) {
	decodeFailures.WithLabelValues(stage).Inc()
}
