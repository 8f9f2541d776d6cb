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
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/ahoma/pebble-webhook/internal/annotations"
)

var _ = Describe("MutationHandler", func() {

	var (
		handler *MutationHandler
		ctx     context.Context
	)

	BeforeEach(func() {
		scheme := runtime.NewScheme()
		Expect(corev1.AddToScheme(scheme)).To(Succeed())
		Expect(admissionv1.AddToScheme(scheme)).To(Succeed())

		handler = NewMutationHandler(scheme)
		ctx = context.Background()
	})

	podRequest := func(pod *corev1.Pod) admission.Request {
		podBytes, err := json.Marshal(pod)
		Expect(err).NotTo(HaveOccurred())

		return admission.Request{
			AdmissionRequest: admissionv1.AdmissionRequest{
				UID:  types.UID("test-uid"),
				Kind: metav1.GroupVersionKind{Version: "v1", Kind: "Pod"},
				Object: runtime.RawExtension{
					Raw: podBytes,
				},
			},
		}
	}

	Context("with unsupported resource kinds", func() {
		It("should allow ConfigMaps without a patch", func() {
			req := admission.Request{
				AdmissionRequest: admissionv1.AdmissionRequest{
					Kind: metav1.GroupVersionKind{Kind: "ConfigMap"},
				},
			}

			response := handler.Handle(ctx, req)

			Expect(response.Allowed).To(BeTrue())
			Expect(response.Patches).To(BeEmpty())
			Expect(response.Result.Message).To(ContainSubstring("unsupported resource kind"))
		})
	})

	Context("with an undecodable pod", func() {
		It("should reject with a bad request error", func() {
			req := admission.Request{
				AdmissionRequest: admissionv1.AdmissionRequest{
					Kind:   metav1.GroupVersionKind{Version: "v1", Kind: "Pod"},
					Object: runtime.RawExtension{Raw: []byte(`{not json`)},
				},
			}

			response := handler.Handle(ctx, req)

			Expect(response.Allowed).To(BeFalse())
			Expect(response.Result.Code).To(Equal(int32(http.StatusBadRequest)))
		})
	})

	Context("with a pod that needs no mutation", func() {
		It("should allow without a patch", func() {
			response := handler.Handle(ctx, podRequest(podWithContainers(writableContainer("app"))))

			Expect(response.Allowed).To(BeTrue())
			Expect(response.Patches).To(BeEmpty())
		})

		It("should allow an already mounted pod without a patch", func() {
			container := readOnlyContainer("app")
			container.VolumeMounts = []corev1.VolumeMount{
				{Name: "user-managed", MountPath: "/var/lib/pebble/default"},
			}

			response := handler.Handle(ctx, podRequest(podWithContainers(container)))

			Expect(response.Allowed).To(BeTrue())
			Expect(response.Patches).To(BeEmpty())
		})
	})

	Context("with a qualifying pod", func() {
		It("should allow with patch operations", func() {
			response := handler.Handle(ctx, podRequest(podWithContainers(readOnlyContainer("app"))))

			Expect(response.Allowed).To(BeTrue())
			Expect(response.Patches).NotTo(BeEmpty())

			for _, op := range response.Patches {
				Expect(op.Operation).To(Equal("add"))
			}
		})

		It("should patch only the read-only container of a mixed pod", func() {
			pod := podWithContainers(writableContainer("frontend"), readOnlyContainer("backend"))

			response := handler.Handle(ctx, podRequest(pod))

			Expect(response.Allowed).To(BeTrue())
			for _, op := range response.Patches {
				Expect(op.Path).NotTo(HavePrefix("/spec/containers/0/"))
			}
		})

		It("should honor the base directory override annotation", func() {
			pod := podWithContainers(readOnlyContainer("app"))
			pod.Annotations = map[string]string{
				annotations.BaseDirAnnotation: "/var/lib/foo/lish",
			}

			response := handler.Handle(ctx, podRequest(pod))

			Expect(response.Allowed).To(BeTrue())

			var envValues []string
			for _, op := range response.Patches {
				valueBytes, err := json.Marshal(op.Value)
				Expect(err).NotTo(HaveOccurred())
				envValues = append(envValues, string(valueBytes))
			}
			Expect(envValues).To(ContainElement(ContainSubstring("/var/lib/foo/lish/writable")))
		})
	})
})
