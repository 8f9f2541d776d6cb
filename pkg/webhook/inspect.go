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
	corev1 "k8s.io/api/core/v1"
)

// hasReadOnlyRootFilesystem reports whether the container declares a
// read-only root filesystem. Absent security context or field means false.
func hasReadOnlyRootFilesystem(container *corev1.Container) bool {
	secContext := container.SecurityContext
	if secContext == nil || secContext.ReadOnlyRootFilesystem == nil {
		return false
	}
	return *secContext.ReadOnlyRootFilesystem
}

// hasMountAt reports whether the container already mounts the given path.
// Matching is exact; a mount at a parent or child path does not count.
func hasMountAt(container *corev1.Container, path string) bool {
	for _, mount := range container.VolumeMounts {
		if mount.MountPath == path {
			return true
		}
	}
	return false
}

// existingEnvNames returns the set of env var names declared on the container.
func existingEnvNames(container *corev1.Container) map[string]bool {
	names := make(map[string]bool, len(container.Env))
	for _, env := range container.Env {
		names[env.Name] = true
	}
	return names
}

// hasVolume reports whether the pod already declares a volume of the given name.
func hasVolume(pod *corev1.Pod, name string) bool {
	for _, volume := range pod.Spec.Volumes {
		if volume.Name == name {
			return true
		}
	}
	return false
}
