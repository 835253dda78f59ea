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

package scope

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the compilation configuration consumed by scope planning.
// It is read-only once built and can be shared freely.
type Config struct {
	// DefaultPrimitiveScope is the scope for primitive computations
	// left unconstrained by any annotation.
	DefaultPrimitiveScope Scope
	// HostScope is the scope holding shapes and allocator metadata.
	HostScope Scope
	// HomogeneousTarget is true if the module compiles for a single target.
	HomogeneousTarget bool
}

// NewConfig returns a configuration with canonicalized default and host scopes.
func NewConfig(defaultScope, hostScope Scope, homogeneous bool) *Config {
	cfg := &Config{HomogeneousTarget: homogeneous}
	cfg.DefaultPrimitiveScope = cfg.Canonical(defaultScope)
	cfg.HostScope = cfg.Canonical(hostScope)
	return cfg
}

// Canonical returns the representative scope among scopes differing
// only in unset fields. A scope with a device kind but no virtual
// device index is promoted to virtual device 0 of that kind. The fully
// unconstrained scope is its own representative.
func (cfg *Config) Canonical(s Scope) Scope {
	if s.IsFullyUnconstrained() {
		return s
	}
	if _, ok := s.VirtualID(); !ok && s.Kind() != UnknownDevice {
		s.virtualID = 1
	}
	return s
}

type scopeFile struct {
	Kind      string `yaml:"kind"`
	VirtualID *int   `yaml:"virtual_id"`
	MemScope  string `yaml:"mem_scope"`
	Target    string `yaml:"target"`
}

type configFile struct {
	DefaultScope scopeFile `yaml:"default_scope"`
	HostScope    scopeFile `yaml:"host_scope"`
	Homogeneous  bool      `yaml:"homogeneous"`
}

func (sf scopeFile) scope() (Scope, error) {
	if sf.Kind == "" {
		return Scope{}, nil
	}
	kind, err := KindFromString(sf.Kind)
	if err != nil {
		return Scope{}, err
	}
	s := New(kind)
	if sf.VirtualID != nil {
		s = NewVirtual(kind, *sf.VirtualID)
	}
	if sf.MemScope != "" {
		s = s.WithMemScope(sf.MemScope)
	}
	if sf.Target != "" {
		s = s.WithTarget(sf.Target)
	}
	return s, nil
}

// ParseConfig builds a configuration from its YAML description.
func ParseConfig(src []byte) (*Config, error) {
	file := configFile{}
	if err := yaml.Unmarshal(src, &file); err != nil {
		return nil, errors.Wrap(err, "cannot parse scope configuration")
	}
	defaultScope, err := file.DefaultScope.scope()
	if err != nil {
		return nil, errors.Wrap(err, "invalid default scope")
	}
	hostScope, err := file.HostScope.scope()
	if err != nil {
		return nil, errors.Wrap(err, "invalid host scope")
	}
	return NewConfig(defaultScope, hostScope, file.Homogeneous), nil
}

// LoadConfigFile reads a configuration from a YAML file.
func LoadConfigFile(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read scope configuration %s", path)
	}
	return ParseConfig(src)
}
