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

package ir

import (
	"iter"
	"strings"

	"github.com/pkg/errors"
	"github.com/relgo-org/relgo/base/ordered"
)

// Module maps global names to top-level functions, plus the data type
// definitions of the program. Functions are iterated in the order in
// which they were added, so rewriting passes are deterministic.
type Module struct {
	TypeDefs []*DataDecl

	defs *ordered.Map[string, *Definition]
}

// Definition is a module-level function bound to its global.
type Definition struct {
	Name *GlobalVar
	Fn   *Function
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{defs: ordered.NewMap[string, *Definition]()}
}

// Add binds a function to a global in the module.
func (m *Module) Add(gv *GlobalVar, fn *Function) {
	m.defs.Set(gv.Name, &Definition{Name: gv, Fn: fn})
}

// AddFunc creates a global of the function's type and binds the
// function to it, returning the global.
func (m *Module) AddFunc(name string, fn *Function) *GlobalVar {
	gv := &GlobalVar{Name: name, Typ: fn.Typ}
	m.Add(gv, fn)
	return gv
}

// Global returns the global bound to a name.
func (m *Module) Global(name string) (*GlobalVar, error) {
	def, ok := m.defs.Get(name)
	if !ok {
		return nil, errors.Errorf("global %s not defined in module", name)
	}
	return def.Name, nil
}

// Func returns the function bound to a name.
func (m *Module) Func(name string) (*Function, error) {
	def, ok := m.defs.Get(name)
	if !ok {
		return nil, errors.Errorf("global %s not defined in module", name)
	}
	return def.Fn, nil
}

// NumFuncs returns the number of functions in the module.
func (m *Module) NumFuncs() int {
	return m.defs.Len()
}

// Funcs iterates over the module's definitions in insertion order.
func (m *Module) Funcs() iter.Seq2[*GlobalVar, *Function] {
	return func(yield func(*GlobalVar, *Function) bool) {
		for _, def := range m.defs.Pairs() {
			if !yield(def.Name, def.Fn) {
				return
			}
		}
	}
}

// String representation of the module.
func (m *Module) String() string {
	b := strings.Builder{}
	for gv, fn := range m.Funcs() {
		b.WriteString("def ")
		b.WriteString(gv.String())
		b.WriteString(" = ")
		b.WriteString(fn.String())
		b.WriteString("\n")
	}
	return b.String()
}
