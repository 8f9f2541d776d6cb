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

// Package apis defines the core data types used by the Pebble webhook to
// describe mutation targets and per-pod mutation plans.
package apis

import (
	"fmt"
	"path"
	"strings"
)

const (
	// DefaultBaseDir is the directory Pebble uses when no override is configured
	DefaultBaseDir = "/var/lib/pebble/default"

	// WritableSubdir is the subdirectory of the base directory where Pebble
	// keeps its runtime-writable state
	WritableSubdir = "writable"

	// VolumeName is the name of the shared EmptyDir volume injected into
	// mutated pods
	VolumeName = "pebble-dir"

	// EnvVarName is the env var pointing Pebble at its writable directory
	EnvVarName = "PEBBLE"

	// CopyOnceEnvVarName is the env var pointing Pebble at the directory
	// holding pre-seeded copy-once files
	CopyOnceEnvVarName = "PEBBLE_COPY_ONCE"
)

// PebbleTarget describes where Pebble state lives for one pod. The base
// directory is resolved once per pod and applied to every mutated container.
type PebbleTarget struct {
	// BaseDir is the directory Pebble expects its copy-once files in
	BaseDir string `json:"baseDir"`
}

// DefaultTarget returns the target for pods without an override annotation.
func DefaultTarget() PebbleTarget {
	return PebbleTarget{BaseDir: DefaultBaseDir}
}

// NewTarget builds a target for the given base directory. Invalid values
// fall back to the default directory rather than failing admission.
func NewTarget(baseDir string) PebbleTarget {
	target := PebbleTarget{BaseDir: path.Clean(baseDir)}
	if err := target.Validate(); err != nil {
		return DefaultTarget()
	}
	return target
}

// Validate checks that the base directory is a usable absolute path.
func (t PebbleTarget) Validate() error {
	if t.BaseDir == "" {
		return fmt.Errorf("base directory must not be empty")
	}
	if !strings.HasPrefix(t.BaseDir, "/") {
		return fmt.Errorf("base directory must be an absolute path, got %q", t.BaseDir)
	}
	if t.BaseDir == "/" {
		return fmt.Errorf("base directory must not be the filesystem root")
	}
	return nil
}

// WritableDir returns the directory Pebble writes its runtime state to.
func (t PebbleTarget) WritableDir() string {
	return path.Join(t.BaseDir, WritableSubdir)
}

// IsDefault returns true if the target uses the default base directory.
func (t PebbleTarget) IsDefault() bool {
	return t.BaseDir == DefaultBaseDir
}
