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

// Package annotations provides parsing and validation of the pod annotations
// recognized by the Pebble webhook.
package annotations

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/ahoma/pebble-webhook/pkg/apis"
)

const (
	// BaseDirAnnotation overrides the Pebble base directory for all
	// containers of the annotated pod
	BaseDirAnnotation = "pebble.io/base-dir"
)

// Parser resolves the Pebble target from pod metadata.
type Parser struct{}

// NewParser creates a new annotation parser.
func NewParser() *Parser {
	return &Parser{}
}

// ResolveTarget returns the Pebble target for the given pod. A missing,
// empty, or non-absolute override value falls back to the default base
// directory; admission never fails on a malformed override.
func (p *Parser) ResolveTarget(obj metav1.Object) apis.PebbleTarget {
	annotations := obj.GetAnnotations()
	if annotations == nil {
		return apis.DefaultTarget()
	}

	override, exists := annotations[BaseDirAnnotation]
	if !exists {
		return apis.DefaultTarget()
	}

	override = strings.TrimSpace(override)
	if override == "" {
		return apis.DefaultTarget()
	}

	return apis.NewTarget(override)
}

// HasOverride returns true when the pod carries a base directory override,
// well-formed or not.
func (p *Parser) HasOverride(obj metav1.Object) bool {
	annotations := obj.GetAnnotations()
	if annotations == nil {
		return false
	}
	_, exists := annotations[BaseDirAnnotation]
	return exists
}
