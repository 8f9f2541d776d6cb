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
	"encoding/json"

	evanjsonpatch "github.com/evanphx/json-patch/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"

	"github.com/ahoma/pebble-webhook/pkg/apis"
)

// applyPatches runs the produced operations through an RFC 6902 patcher
// against the original pod document and returns the patched pod.
func applyPatches(pod *corev1.Pod, plan apis.MutationPlan) *corev1.Pod {
	podJSON, err := json.Marshal(pod)
	Expect(err).NotTo(HaveOccurred())

	opsJSON, err := json.Marshal(BuildPatches(plan))
	Expect(err).NotTo(HaveOccurred())

	patch, err := evanjsonpatch.DecodePatch(opsJSON)
	Expect(err).NotTo(HaveOccurred())

	patchedJSON, err := patch.Apply(podJSON)
	Expect(err).NotTo(HaveOccurred())

	patched := &corev1.Pod{}
	Expect(json.Unmarshal(patchedJSON, patched)).To(Succeed())
	return patched
}

// envMap flattens a container's env into a name->value map.
func envMap(container corev1.Container) map[string]string {
	envs := make(map[string]string, len(container.Env))
	for _, env := range container.Env {
		envs[env.Name] = env.Value
	}
	return envs
}

var _ = Describe("BuildPatches", func() {

	var target apis.PebbleTarget

	BeforeEach(func() {
		target = apis.DefaultTarget()
	})

	Context("with an empty plan", func() {
		It("should produce no operations", func() {
			pod := podWithContainers(writableContainer("app"))
			plan := Decide(pod, target)

			Expect(BuildPatches(plan)).To(BeEmpty())
		})

		It("should produce no operations for an already mounted container", func() {
			container := readOnlyContainer("app")
			container.VolumeMounts = []corev1.VolumeMount{
				{Name: "user-managed", MountPath: apis.DefaultBaseDir},
			}
			pod := podWithContainers(container)
			plan := Decide(pod, target)

			Expect(BuildPatches(plan)).To(BeEmpty())
		})
	})

	Context("with a single qualifying container", func() {
		It("should emit only add operations", func() {
			pod := podWithContainers(readOnlyContainer("app"))
			plan := Decide(pod, target)

			for _, op := range BuildPatches(plan) {
				Expect(op.Operation).To(Equal("add"))
			}
		})

		It("should inject env vars, mount, and volume", func() {
			pod := podWithContainers(readOnlyContainer("app"))
			patched := applyPatches(pod, Decide(pod, target))

			envs := envMap(patched.Spec.Containers[0])
			Expect(envs).To(HaveKeyWithValue("PEBBLE", "/var/lib/pebble/default/writable"))
			Expect(envs).To(HaveKeyWithValue("PEBBLE_COPY_ONCE", "/var/lib/pebble/default"))

			mounts := patched.Spec.Containers[0].VolumeMounts
			Expect(mounts).To(HaveLen(1))
			Expect(mounts[0].Name).To(Equal("pebble-dir"))
			Expect(mounts[0].MountPath).To(Equal("/var/lib/pebble/default"))
			Expect(mounts[0].SubPath).To(Equal("app"))

			Expect(patched.Spec.Volumes).To(HaveLen(1))
			Expect(patched.Spec.Volumes[0].Name).To(Equal("pebble-dir"))
			Expect(patched.Spec.Volumes[0].EmptyDir).NotTo(BeNil())
		})
	})

	Context("with a mixed pod", func() {
		It("should leave the writable container untouched", func() {
			pod := podWithContainers(writableContainer("frontend"), readOnlyContainer("backend"))
			patched := applyPatches(pod, Decide(pod, target))

			Expect(patched.Spec.Containers[0].Env).To(BeEmpty())
			Expect(patched.Spec.Containers[0].VolumeMounts).To(BeEmpty())

			envs := envMap(patched.Spec.Containers[1])
			Expect(envs).To(HaveKeyWithValue("PEBBLE", "/var/lib/pebble/default/writable"))
			Expect(envs).To(HaveKeyWithValue("PEBBLE_COPY_ONCE", "/var/lib/pebble/default"))
			Expect(patched.Spec.Volumes).To(HaveLen(1))
		})
	})

	Context("with multiple qualifying containers", func() {
		It("should add exactly one shared volume", func() {
			pod := podWithContainers(readOnlyContainer("first"), readOnlyContainer("second"))
			patched := applyPatches(pod, Decide(pod, target))

			Expect(patched.Spec.Volumes).To(HaveLen(1))
			Expect(patched.Spec.Containers[0].VolumeMounts[0].SubPath).To(Equal("first"))
			Expect(patched.Spec.Containers[1].VolumeMounts[0].SubPath).To(Equal("second"))
		})
	})

	Context("with existing env and mounts", func() {
		It("should append without disturbing existing entries", func() {
			container := readOnlyContainer("app")
			container.Env = []corev1.EnvVar{{Name: "HOME", Value: "/root"}}
			container.VolumeMounts = []corev1.VolumeMount{
				{Name: "data", MountPath: "/data"},
			}
			pod := podWithContainers(container)
			pod.Spec.Volumes = []corev1.Volume{
				{Name: "data", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
			}

			patched := applyPatches(pod, Decide(pod, target))

			Expect(patched.Spec.Containers[0].Env[0].Name).To(Equal("HOME"))
			Expect(patched.Spec.Containers[0].Env).To(HaveLen(3))
			Expect(patched.Spec.Containers[0].VolumeMounts[0].Name).To(Equal("data"))
			Expect(patched.Spec.Containers[0].VolumeMounts).To(HaveLen(2))
			Expect(patched.Spec.Volumes).To(HaveLen(2))
		})

		It("should not overwrite an existing Pebble env var", func() {
			container := readOnlyContainer("app")
			container.Env = []corev1.EnvVar{{Name: apis.EnvVarName, Value: "/custom/pebble"}}
			pod := podWithContainers(container)

			patched := applyPatches(pod, Decide(pod, target))

			envs := envMap(patched.Spec.Containers[0])
			Expect(envs).To(HaveKeyWithValue("PEBBLE", "/custom/pebble"))
			Expect(envs).To(HaveKeyWithValue("PEBBLE_COPY_ONCE", "/var/lib/pebble/default"))
		})
	})

	Context("with an overridden base directory", func() {
		It("should derive both env values from the override", func() {
			target = apis.NewTarget("/var/lib/foo/lish")
			pod := podWithContainers(readOnlyContainer("app"))

			patched := applyPatches(pod, Decide(pod, target))

			envs := envMap(patched.Spec.Containers[0])
			Expect(envs).To(HaveKeyWithValue("PEBBLE", "/var/lib/foo/lish/writable"))
			Expect(envs).To(HaveKeyWithValue("PEBBLE_COPY_ONCE", "/var/lib/foo/lish"))
			Expect(patched.Spec.Containers[0].VolumeMounts[0].MountPath).To(Equal("/var/lib/foo/lish"))
		})
	})

	Context("replaying an already patched pod", func() {
		It("should decide AlreadyMounted and emit nothing", func() {
			pod := podWithContainers(readOnlyContainer("first"), readOnlyContainer("second"))
			patched := applyPatches(pod, Decide(pod, target))

			replay := Decide(patched, target)

			Expect(replay.Empty()).To(BeTrue())
			Expect(replay.AlreadyMounted()).To(HaveLen(2))
			Expect(replay.AddVolume).To(BeFalse())
			Expect(BuildPatches(replay)).To(BeEmpty())
		})
	})
})
