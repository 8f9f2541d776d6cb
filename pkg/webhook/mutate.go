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

package webhook

import (
	"context"
	"fmt"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/ahoma/pebble-webhook/internal/annotations"
	"github.com/ahoma/pebble-webhook/pkg/metrics"
)

// MutationHandler handles admission requests for Pebble volume injection.
// It holds no per-request state; concurrent requests share only the decoder
// and parser, both of which are read-only after construction.
type MutationHandler struct {
	Parser  *annotations.Parser
	decoder *admission.Decoder
}

// NewMutationHandler creates a new mutation handler.
func NewMutationHandler(scheme *runtime.Scheme) *MutationHandler {
	return &MutationHandler{
		Parser:  annotations.NewParser(),
		decoder: admission.NewDecoder(scheme),
	}
}

// Handle processes admission webhook requests.
func (m *MutationHandler) Handle(ctx context.Context, req admission.Request) admission.Response {
	logger := log.FromContext(ctx).WithValues(
		"kind", req.Kind.Kind,
		"namespace", req.Namespace,
		"name", req.Name,
		"uid", req.UID,
	)

	if req.Kind.Kind != "Pod" {
		logger.Info("Unsupported resource kind, allowing")
		metrics.RecordAdmissionRequest(req.Kind.Kind, metrics.ResultSkipped)
		return admission.Allowed("unsupported resource kind")
	}

	return m.mutatePod(ctx, req)
}

// mutatePod decides and patches a single pod.
func (m *MutationHandler) mutatePod(ctx context.Context, req admission.Request) admission.Response {
	logger := log.FromContext(ctx)

	var pod corev1.Pod
	if err := m.decoder.Decode(req, &pod); err != nil {
		logger.Error(err, "Failed to decode pod")
		metrics.RecordDecodeFailure(metrics.StagePod)
		return admission.Errored(http.StatusBadRequest, fmt.Errorf("could not decode pod: %w", err))
	}

	target := m.Parser.ResolveTarget(&pod)
	plan := Decide(&pod, target)

	if plan.Empty() {
		if mounted := plan.AlreadyMounted(); len(mounted) > 0 {
			logger.Info("Containers already mount the Pebble base directory",
				"baseDir", target.BaseDir, "containers", len(mounted))
		}
		metrics.RecordAdmissionRequest("Pod", metrics.ResultUnchanged)
		return admission.Allowed("no Pebble mutations needed")
	}

	patches := BuildPatches(plan)

	logger.Info("Injecting Pebble volume and env vars",
		"baseDir", target.BaseDir,
		"writableDir", target.WritableDir(),
		"containers", len(plan.Mutated()),
		"patches", len(patches),
	)
	metrics.RecordAdmissionRequest("Pod", metrics.ResultMutated)
	metrics.RecordMutation(len(plan.Mutated()), len(patches))

	return admission.Patched("injected Pebble writable state volume", patches...)
}
