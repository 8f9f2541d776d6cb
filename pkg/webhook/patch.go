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
	"fmt"

	"gomodules.xyz/jsonpatch/v2"
	corev1 "k8s.io/api/core/v1"

	"github.com/ahoma/pebble-webhook/pkg/apis"
)

// JSON Pointer templates for the patch operations.
const (
	containerEnvPath          = "/spec/containers/%d/env"
	containerEnvAppendPath    = "/spec/containers/%d/env/-"
	containerMountsPath       = "/spec/containers/%d/volumeMounts"
	containerMountsAppendPath = "/spec/containers/%d/volumeMounts/-"
	podVolumesPath            = "/spec/volumes"
	podVolumesAppendPath      = "/spec/volumes/-"
)

// BuildPatches translates a mutation plan into RFC 6902 add operations
// against the original pod document. Operations are strictly additive:
// existing env vars, mounts, and volumes are never replaced or reordered.
// An empty plan produces no operations.
func BuildPatches(plan apis.MutationPlan) []jsonpatch.Operation {
	var ops []jsonpatch.Operation

	for _, container := range plan.Mutated() {
		ops = append(ops, envPatches(container, plan.Target)...)
		ops = append(ops, mountPatch(container, plan.Target))
	}

	if len(ops) == 0 {
		return nil
	}

	if plan.AddVolume {
		ops = append(ops, volumePatch(plan))
	}

	return ops
}

// envPatches emits the add operations for the container's missing Pebble env
// vars. When the container declares no env array at all, the array itself is
// created in a single operation so every emitted path is valid per RFC 6902.
func envPatches(container apis.ContainerDecision, target apis.PebbleTarget) []jsonpatch.Operation {
	envs := make([]corev1.EnvVar, 0, len(container.MissingEnvVars))
	for _, name := range container.MissingEnvVars {
		envs = append(envs, corev1.EnvVar{Name: name, Value: envValue(name, target)})
	}

	if len(envs) == 0 {
		return nil
	}

	if !container.HasEnv {
		return []jsonpatch.Operation{
			jsonpatch.NewOperation("add", fmt.Sprintf(containerEnvPath, container.Index), envs),
		}
	}

	ops := make([]jsonpatch.Operation, 0, len(envs))
	for _, env := range envs {
		ops = append(ops,
			jsonpatch.NewOperation("add", fmt.Sprintf(containerEnvAppendPath, container.Index), env))
	}
	return ops
}

// envValue maps an env var name to its value for the resolved target.
func envValue(name string, target apis.PebbleTarget) string {
	if name == apis.EnvVarName {
		return target.WritableDir()
	}
	return target.BaseDir
}

// mountPatch emits the add operation for the container's Pebble volume mount.
// The subpath keeps containers sharing the pod-level volume from clobbering
// each other's sockets and state files.
func mountPatch(container apis.ContainerDecision, target apis.PebbleTarget) jsonpatch.Operation {
	mount := corev1.VolumeMount{
		Name:      apis.VolumeName,
		MountPath: target.BaseDir,
		SubPath:   container.Name,
	}

	if !container.HasVolumeMounts {
		return jsonpatch.NewOperation("add",
			fmt.Sprintf(containerMountsPath, container.Index), []corev1.VolumeMount{mount})
	}
	return jsonpatch.NewOperation("add",
		fmt.Sprintf(containerMountsAppendPath, container.Index), mount)
}

// volumePatch emits the single add operation for the shared EmptyDir volume.
func volumePatch(plan apis.MutationPlan) jsonpatch.Operation {
	volume := corev1.Volume{
		Name:         apis.VolumeName,
		VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
	}

	if !plan.HasVolumes {
		return jsonpatch.NewOperation("add", podVolumesPath, []corev1.Volume{volume})
	}
	return jsonpatch.NewOperation("add", podVolumesAppendPath, volume)
}
