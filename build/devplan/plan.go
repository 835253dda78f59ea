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

// Package devplan assigns a storage scope to every sub-expression of
// a module.
//
// The pass assumes the module already contains on_device and
// device_copy calls constraining some expressions, and proceeds in
// four phases: a local rewrite tightening annotations (Phase 0), a
// constraint collection over a domain lattice with union-find (Phase
// 1), a defaulting of still-free scopes (Phase 2), and a rewrite
// reifying the solution as explicit copies, annotations and function
// scope attributes (Phase 3).
//
// The pass is idempotent: running it on its own output produces a
// structurally equal module.
package devplan

import (
	"github.com/relgo-org/relgo/build/ir"
	"github.com/relgo-org/relgo/build/scope"
)

// PlanScopes returns a module of identical semantics in which every
// cross-scope data movement is an explicit device_copy, every
// non-primitive function carries param_scopes and result_scope
// attributes (primitive functions are left untouched), and any
// sub-expression's scope can be recovered from the nearest enclosing
// annotation or function attribute.
//
// The input module is not modified. On error no module is returned:
// the caller surfaces the error and can re-run the pass once the
// module is corrected.
func PlanScopes(mod *ir.Module, cfg *scope.Config) (*ir.Module, error) {
	mod = normalize(mod)

	ds := newDomains(cfg)
	if err := (&analyzer{mod: mod, ds: ds}).analyze(); err != nil {
		return nil, err
	}
	if err := (&defaulter{mod: mod, ds: ds}).defaultScopes(); err != nil {
		return nil, err
	}
	return (&capturer{mod: mod, ds: ds}).capture()
}
