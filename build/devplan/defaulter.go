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

package devplan

import (
	"github.com/relgo-org/relgo/build/fmterr"
	"github.com/relgo-org/relgo/build/ir"
)

// Phase 2 fixes every still-free domain:
//   - an unconstrained function result falls back to the configured
//     default scope, and unconstrained parameters then fall back to
//     the function's result scope;
//   - callee domains still free after that (primitive call sites whose
//     results were left open) are defaulted the same way;
//   - an unconstrained let-bound variable falls back to the scope of
//     the overall let.
//
// Defaults are applied in module enumeration order and, within each
// function, in traversal order, so the outcome is deterministic for a
// deterministically ordered module.
type defaulter struct {
	mod *ir.Module
	ds  *domains
}

// defaultScopes fixes free domains in every function of the module.
func (d *defaulter) defaultScopes() error {
	for _, fn := range d.mod.Funcs() {
		if err := d.visit(fn); err != nil {
			return err
		}
	}
	return nil
}

// defaultDomain fixes a function-shaped domain, result first.
func (d *defaulter) defaultDomain(e ir.Expr, domain domainRef) error {
	if d.ds.cfg.DefaultPrimitiveScope.IsFullyUnconstrained() {
		return fmterr.Wrapf(ErrUnresolvedDefault, e, "scopes %s left free", d.ds.str(domain))
	}
	d.ds.setResultDefaultThenParams(domain, d.ds.cfg.DefaultPrimitiveScope)
	return nil
}

func (d *defaulter) visit(e ir.Expr) error {
	switch x := e.(type) {
	case *ir.Function:
		if x.Attrs.Primitive {
			return nil
		}
		funcDomain := d.ds.domainFor(x)
		if !d.ds.isFullyConstrained(funcDomain) {
			if err := d.defaultDomain(x, funcDomain); err != nil {
				return err
			}
		}
		return d.visit(x.Body)
	case *ir.Call:
		funcDomain, err := d.ds.domainForCallee(x)
		if err != nil {
			return err
		}
		if !d.ds.isFullyConstrained(funcDomain) {
			if err := d.defaultDomain(x, funcDomain); err != nil {
				return err
			}
		}
		if err := d.visit(x.Callee); err != nil {
			return err
		}
		for _, arg := range x.Args {
			if err := d.visit(arg); err != nil {
				return err
			}
		}
		return nil
	case *ir.Let:
		return d.visitLet(x)
	case *ir.Tuple:
		for _, field := range x.Fields {
			if err := d.visit(field); err != nil {
				return err
			}
		}
		return nil
	case *ir.TupleGetItem:
		return d.visit(x.Tup)
	case *ir.If:
		if err := d.visit(x.Cond); err != nil {
			return err
		}
		if err := d.visit(x.True); err != nil {
			return err
		}
		return d.visit(x.False)
	case *ir.Match:
		if err := d.visit(x.Data); err != nil {
			return err
		}
		for _, clause := range x.Clauses {
			if err := d.visit(clause.Body); err != nil {
				return err
			}
		}
		return nil
	case *ir.RefCreate:
		return d.visit(x.Value)
	case *ir.RefRead:
		return d.visit(x.Ref)
	case *ir.RefWrite:
		if err := d.visit(x.Ref); err != nil {
			return err
		}
		return d.visit(x.Value)
	}
	return nil
}

// visitLet fixes still-free let-bound variables to the scope of the
// enclosing let, walking the spine iteratively.
func (d *defaulter) visitLet(let *ir.Let) error {
	var expr ir.Expr = let
	for {
		inner, ok := expr.(*ir.Let)
		if !ok {
			break
		}
		letScope := d.ds.resultScope(d.ds.domainFor(inner))
		if letScope.IsFullyUnconstrained() {
			return fmterr.Wrapf(ErrUnresolvedDefault, inner, "let expression has no scope")
		}
		boundDomain := d.ds.domainFor(inner.Bound)
		if !d.ds.isFullyConstrained(boundDomain) {
			d.ds.setDefault(boundDomain, letScope)
		}
		if err := d.visit(inner.Value); err != nil {
			return err
		}
		expr = inner.Body
	}
	return d.visit(expr)
}
