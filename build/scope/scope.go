// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scope describes where the result of evaluating an expression
// is stored: a device kind, a virtual device index, and optionally a
// memory scope on that device and the target the device's code is
// compiled with. Every component may be left unset; the zero value is
// the fully unconstrained scope.
package scope

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DeviceKind tags the kind of device holding a value.
type DeviceKind int

// Device kinds.
const (
	UnknownDevice DeviceKind = iota
	CPU
	GPU
	// Host is the CPU-like device driving execution. Where shapes
	// and allocator metadata live is set by Config.HostScope, which
	// may be of any kind.
	Host
)

var kindNames = map[DeviceKind]string{
	UnknownDevice: "?",
	CPU:           "cpu",
	GPU:           "gpu",
	Host:          "host",
}

// String returns the name of the device kind.
func (k DeviceKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("devicekind(%d)", int(k))
}

// KindFromString returns the device kind with the given name.
func KindFromString(s string) (DeviceKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return UnknownDevice, errors.Errorf("unknown device kind: %q", s)
}

// Scope is a value-equal description of a storage location.
// The zero value is the fully unconstrained scope.
type Scope struct {
	kind DeviceKind
	// Virtual device index, stored shifted by one so that the zero
	// value means unset.
	virtualID int
	memScope  string
	target    string
}

// New returns a scope constrained to a device kind only.
func New(kind DeviceKind) Scope {
	return Scope{kind: kind}
}

// NewVirtual returns a scope constrained to a virtual device of a kind.
func NewVirtual(kind DeviceKind, id int) Scope {
	return Scope{kind: kind, virtualID: id + 1}
}

// WithMemScope returns a copy of the scope with a memory scope set.
func (s Scope) WithMemScope(mem string) Scope {
	s.memScope = mem
	return s
}

// WithTarget returns a copy of the scope with a compilation target set.
func (s Scope) WithTarget(target string) Scope {
	s.target = target
	return s
}

// Kind returns the device kind, UnknownDevice if unset.
func (s Scope) Kind() DeviceKind {
	return s.kind
}

// VirtualID returns the virtual device index and whether it is set.
func (s Scope) VirtualID() (int, bool) {
	return s.virtualID - 1, s.virtualID > 0
}

// MemScope returns the memory scope and whether it is set.
func (s Scope) MemScope() (string, bool) {
	return s.memScope, s.memScope != ""
}

// Target returns the compilation target name and whether it is set.
func (s Scope) Target() (string, bool) {
	return s.target, s.target != ""
}

// IsFullyUnconstrained returns true if every component is unset.
func (s Scope) IsFullyUnconstrained() bool {
	return s == Scope{}
}

// Equal returns true if all components of both scopes match.
func (s Scope) Equal(o Scope) bool {
	return s == o
}

// String returns the scope as kind:id:memscope(target), omitting
// unset components, or "?" for the fully unconstrained scope.
func (s Scope) String() string {
	if s.IsFullyUnconstrained() {
		return "?"
	}
	b := strings.Builder{}
	b.WriteString(s.kind.String())
	if id, ok := s.VirtualID(); ok {
		fmt.Fprintf(&b, ":%d", id)
	}
	if mem, ok := s.MemScope(); ok {
		fmt.Fprintf(&b, ":%s", mem)
	}
	if target, ok := s.Target(); ok {
		fmt.Fprintf(&b, "(%s)", target)
	}
	return b.String()
}

// Join merges two scopes component-wise. For each component, either
// side may be unset; if both are set they must be equal.
func Join(a, b Scope) (Scope, error) {
	joined := a
	if b.kind != UnknownDevice {
		if a.kind != UnknownDevice && a.kind != b.kind {
			return Scope{}, errors.Errorf("cannot join scope %s with %s: device kinds differ", a, b)
		}
		joined.kind = b.kind
	}
	if b.virtualID > 0 {
		if a.virtualID > 0 && a.virtualID != b.virtualID {
			return Scope{}, errors.Errorf("cannot join scope %s with %s: virtual device indices differ", a, b)
		}
		joined.virtualID = b.virtualID
	}
	if b.memScope != "" {
		if a.memScope != "" && a.memScope != b.memScope {
			return Scope{}, errors.Errorf("cannot join scope %s with %s: memory scopes differ", a, b)
		}
		joined.memScope = b.memScope
	}
	if b.target != "" {
		if a.target != "" && a.target != b.target {
			return Scope{}, errors.Errorf("cannot join scope %s with %s: targets differ", a, b)
		}
		joined.target = b.target
	}
	return joined, nil
}
