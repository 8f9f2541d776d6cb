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

	"github.com/ahoma/pebble-webhook/pkg/apis"
)

// Decide computes the mutation plan for a pod against the resolved Pebble
// target. It is a pure function over its inputs; the pod is never modified.
//
// Per container, in declaration order:
//   - root filesystem not read-only: Skip
//   - base directory already mounted: AlreadyMounted (left untouched, which
//     makes re-admission of an already-patched pod a no-op)
//   - otherwise: Mutate
//
// The shared volume is added at most once per pod, and never when a volume
// of the same name already exists.
func Decide(pod *corev1.Pod, target apis.PebbleTarget) apis.MutationPlan {
	plan := apis.MutationPlan{
		Target:     target,
		HasVolumes: pod.Spec.Volumes != nil,
	}

	for i := range pod.Spec.Containers {
		container := &pod.Spec.Containers[i]
		decision := apis.ContainerDecision{
			Name:            container.Name,
			Index:           i,
			Decision:        apis.DecisionSkip,
			HasEnv:          container.Env != nil,
			HasVolumeMounts: container.VolumeMounts != nil,
		}

		switch {
		case !hasReadOnlyRootFilesystem(container):
			decision.Decision = apis.DecisionSkip
		case hasMountAt(container, target.BaseDir):
			decision.Decision = apis.DecisionAlreadyMounted
		default:
			decision.Decision = apis.DecisionMutate
			decision.MissingEnvVars = missingEnvVars(container)
		}

		plan.Containers = append(plan.Containers, decision)
	}

	if !plan.Empty() && !hasVolume(pod, apis.VolumeName) {
		plan.AddVolume = true
	}

	return plan
}

// missingEnvVars returns the Pebble env var names the container does not
// declare, in injection order. Existing vars are left alone rather than
// overwritten.
func missingEnvVars(container *corev1.Container) []string {
	existing := existingEnvNames(container)

	var missing []string
	for _, name := range []string{apis.EnvVarName, apis.CopyOnceEnvVarName} {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
