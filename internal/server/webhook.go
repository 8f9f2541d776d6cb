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

// Package server provides the HTTP layer of the Pebble webhook: the
// AdmissionReview protocol adapter, health probes, and the metrics endpoint.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	v1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/ahoma/pebble-webhook/pkg/metrics"
	webhookmutate "github.com/ahoma/pebble-webhook/pkg/webhook"
)

// WebhookServer adapts the AdmissionReview wire protocol to the mutation
// handler. It holds only immutable state and is safe for concurrent requests.
type WebhookServer struct {
	mutateHandler *webhookmutate.MutationHandler
	scheme        *runtime.Scheme
	codecs        serializer.CodecFactory
}

// NewWebhookServer creates a new webhook protocol adapter.
func NewWebhookServer(mutateHandler *webhookmutate.MutationHandler, scheme *runtime.Scheme) *WebhookServer {
	return &WebhookServer{
		mutateHandler: mutateHandler,
		scheme:        scheme,
		codecs:        serializer.NewCodecFactory(scheme),
	}
}

// MutateHandler implements the /mutate endpoint. Transport-level problems
// (unreadable, oversized, or non-AdmissionReview bodies) get plain HTTP
// errors; failures inside a well-formed review become allowed=false
// admission responses carrying the request UID.
func (w *WebhookServer) MutateHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
				"code":  "REQUEST_BODY_TOO_LARGE",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed to read request body",
			"code":  "INVALID_REQUEST_BODY",
		})
		return
	}

	review, err := w.decodeAdmissionReview(body)
	if err != nil {
		metrics.RecordDecodeFailure(metrics.StageEnvelope)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "failed to deserialize admission review",
			"code":    "INVALID_ADMISSION_REQUEST",
			"details": err.Error(),
		})
		return
	}

	logger := log.FromContext(c.Request.Context()).WithValues(
		"uid", review.Request.UID,
		"kind", review.Request.Kind.Kind,
		"namespace", review.Request.Namespace,
	)
	ctx := log.IntoContext(c.Request.Context(), logger)

	req := admission.Request{AdmissionRequest: *review.Request}
	response := w.mutateHandler.Handle(ctx, req)

	if err := response.Complete(req); err != nil {
		logger.Error(err, "Failed to serialize patch operations")
		metrics.RecordAdmissionRequest(review.Request.Kind.Kind, metrics.ResultError)
		response = admission.Errored(http.StatusInternalServerError, err)
		response.UID = review.Request.UID
	}

	w.sendAdmissionResponse(c, &response.AdmissionResponse)
}

// decodeAdmissionReview deserializes and validates the request envelope.
func (w *WebhookServer) decodeAdmissionReview(body []byte) (*v1.AdmissionReview, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty admission request body")
	}

	review := &v1.AdmissionReview{}
	_, gvk, err := w.codecs.UniversalDeserializer().Decode(body, nil, review)
	if err != nil {
		return nil, fmt.Errorf("request could not be decoded: %w", err)
	}

	if *gvk != v1.SchemeGroupVersion.WithKind("AdmissionReview") {
		return nil, fmt.Errorf("unsupported group version kind: %v", gvk)
	}

	if review.Request == nil {
		return nil, fmt.Errorf("admission review has no request")
	}

	return review, nil
}

// sendAdmissionResponse wraps the response in an AdmissionReview envelope.
func (w *WebhookServer) sendAdmissionResponse(c *gin.Context, response *v1.AdmissionResponse) {
	review := v1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: v1.SchemeGroupVersion.String(),
			Kind:       "AdmissionReview",
		},
		Response: response,
	}

	c.JSON(http.StatusOK, review)
}

// SetupRoutes registers the webhook routes on the given engine, with any
// middleware running ahead of the mutate handler.
func (w *WebhookServer) SetupRoutes(router *gin.Engine, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, w.MutateHandler)
	router.POST("/mutate", handlers...)
}
