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

// Package webhook implements the mutating admission logic that lets the
// Pebble service supervisor run inside containers with a read-only root
// filesystem.
//
// Pebble needs a writable directory for its state (sockets, layers,
// identities). When a container declares readOnlyRootFilesystem, the webhook
// injects:
//
//   - a pod-level EmptyDir volume named pebble-dir (once per pod)
//   - a volume mount at the Pebble base directory in each qualifying
//     container, subpathed by container name
//   - PEBBLE and PEBBLE_COPY_ONCE env vars pointing Pebble at its writable
//     directory and its pre-seeded copy-once files
//
// The base directory defaults to /var/lib/pebble/default and can be
// overridden per pod with the pebble.io/base-dir annotation. Containers that
// already mount the base directory are left untouched, which makes the
// mutation idempotent under replayed admission of an already-patched pod.
//
// The mutation pipeline is Decide (pure decision over the pod spec) followed
// by BuildPatches (RFC 6902 add operations); MutationHandler adapts the
// pipeline to the controller-runtime admission interfaces.
package webhook
