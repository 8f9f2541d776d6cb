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

package apis

// Decision describes what the webhook will do with a single container.
type Decision string

const (
	// DecisionSkip means the container does not qualify for mutation
	// (its root filesystem is not read-only)
	DecisionSkip Decision = "Skip"

	// DecisionAlreadyMounted means the container qualifies but already
	// mounts the base directory, so it is left untouched
	DecisionAlreadyMounted Decision = "AlreadyMounted"

	// DecisionMutate means the container will receive the Pebble volume
	// mount and env vars
	DecisionMutate Decision = "Mutate"
)

// ContainerDecision records the outcome for one container of the pod.
type ContainerDecision struct {
	// Name is the container name
	Name string `json:"name"`

	// Index is the container's position in spec.containers, used to build
	// JSON Pointer paths for patch operations
	Index int `json:"index"`

	// Decision is the mutation decision for this container
	Decision Decision `json:"decision"`

	// MissingEnvVars lists the Pebble env var names the container does not
	// declare yet, in injection order. Only meaningful for DecisionMutate.
	MissingEnvVars []string `json:"missingEnvVars,omitempty"`

	// HasEnv is true when the container declares an env array
	HasEnv bool `json:"hasEnv"`

	// HasVolumeMounts is true when the container declares a volumeMounts array
	HasVolumeMounts bool `json:"hasVolumeMounts"`
}

// MutationPlan is the per-pod outcome of the decision engine. It is computed
// from one admission request and discarded with it.
type MutationPlan struct {
	// Target is the resolved Pebble target for the whole pod
	Target PebbleTarget `json:"target"`

	// Containers holds one decision per container, in declaration order
	Containers []ContainerDecision `json:"containers"`

	// AddVolume is true when the shared pebble-dir volume must be added
	AddVolume bool `json:"addVolume"`

	// HasVolumes is true when the pod already declares a volumes array
	HasVolumes bool `json:"hasVolumes"`
}

// Empty returns true when no container needs mutation.
func (p *MutationPlan) Empty() bool {
	return len(p.Mutated()) == 0
}

// Mutated returns the decisions for containers that will be mutated.
func (p *MutationPlan) Mutated() []ContainerDecision {
	var mutated []ContainerDecision
	for _, c := range p.Containers {
		if c.Decision == DecisionMutate {
			mutated = append(mutated, c)
		}
	}
	return mutated
}

// AlreadyMounted returns the decisions for containers that qualify but are
// already mounted. Recorded separately so callers can observe idempotent
// replays.
func (p *MutationPlan) AlreadyMounted() []ContainerDecision {
	var mounted []ContainerDecision
	for _, c := range p.Containers {
		if c.Decision == DecisionAlreadyMounted {
			mounted = append(mounted, c)
		}
	}
	return mounted
}
