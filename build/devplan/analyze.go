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

// Phase 1 collects the system of scope constraints for every
// sub-expression of a module. Constraints flow from on_device and
// device_copy calls, from pre-existing function scope attributes and
// from the dialect operators to all other expressions. Some domains
// may remain free; Phase 2 defaults them.
//
// Constraints can flow through lexically distant sites. In
//
//	let %f = fn(%x, %y) { add(%x, on_device(%y, scope=d)) }
//	let %g = fn(%h, %z) { %h(%z, %z) }
//	%g(%f, %b)
//
// the analysis discovers %b must be on scope d.
type analyzer struct {
	mod *ir.Module
	ds  *domains
}

// analyze collects constraints for every function of the module.
func (a *analyzer) analyze() error {
	for gv, fn := range a.mod.Funcs() {
		if err := a.ds.unifyExprExact(gv, fn); err != nil {
			return err
		}
		if err := a.visit(fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) visit(e ir.Expr) error {
	switch x := e.(type) {
	case *ir.Call:
		return a.visitCall(x)
	case *ir.Let:
		return a.visitLet(x)
	case *ir.Function:
		return a.visitFunction(x)
	case *ir.Tuple:
		return a.visitTuple(x)
	case *ir.TupleGetItem:
		if err := a.ds.unifyExprCollapsed(x.Tup, a.ds.domainFor(x)); err != nil {
			return err
		}
		return a.visit(x.Tup)
	case *ir.If:
		return a.visitIf(x)
	case *ir.Match:
		return a.visitMatch(x)
	case *ir.RefCreate:
		if err := a.ds.unifyExprCollapsed(x, a.ds.domainFor(x.Value)); err != nil {
			return err
		}
		return a.visit(x.Value)
	case *ir.RefRead:
		if err := a.ds.unifyExprCollapsed(x.Ref, a.ds.domainFor(x)); err != nil {
			return err
		}
		return a.visit(x.Ref)
	case *ir.RefWrite:
		valueDomain := a.ds.domainFor(x.Value)
		if err := a.ds.unifyExprCollapsed(x.Ref, valueDomain); err != nil {
			return err
		}
		if err := a.ds.unifyExprCollapsed(x, valueDomain); err != nil {
			return err
		}
		if err := a.visit(x.Ref); err != nil {
			return err
		}
		return a.visit(x.Value)
	case *ir.Var, *ir.GlobalVar, *ir.Constant:
		a.ds.domainFor(x)
		return nil
	case *ir.Op, *ir.Cons:
		// Operators and constructors are handled at their call sites.
		return nil
	}
	return fmterr.Internalf(e, "expression kind not supported by scope analysis")
}

// visitCall collects the constraints of an application.
//
// For dialect operators and non-primitive callees, the callee's
// higher-order domain unifies exactly with the domain implied by the
// arguments and the call context: user functions are not scope
// polymorphic, so every call site must agree.
//
// Calls to all other operators and to constructors keep their
// arguments and result on one shared scope, with two refinements:
// an annotation appearing directly as an argument pins that shared
// scope, while an argument whose own scope is already constrained
// marks a deliberate boundary and is left alone so that Phase 3
// reconciles it with a copy.
func (a *analyzer) visitCall(call *ir.Call) error {
	if err := a.visit(call.Callee); err != nil {
		return err
	}
	funcDomain, err := a.ds.domainForCallee(call)
	if err != nil {
		return err
	}
	if arity := a.ds.arity(funcDomain); arity != len(call.Args) {
		return fmterr.Wrapf(ErrArityMismatch, call, "callee expects %d arguments, got %d", arity, len(call.Args))
	}
	if scopePolyCall(call) {
		return a.visitPrimCall(call, funcDomain)
	}
	children := make([]domainRef, 0, len(call.Args)+1)
	for _, arg := range call.Args {
		children = append(children, a.ds.domainFor(arg))
		if err := a.visit(arg); err != nil {
			return err
		}
	}
	children = append(children, a.ds.domainFor(call))
	impliedDomain := a.ds.allocHigherOrder(children)
	if err := a.ds.unifyExact(funcDomain, impliedDomain); err != nil {
		return fmterr.Wrapf(err, call, "callee scopes %s do not match the scopes %s implied by the call",
			a.ds.str(funcDomain), a.ds.str(impliedDomain))
	}
	return nil
}

// scopePolyCall returns true for calls whose callee is solved per call
// site: generic operators and constructors, but not the dialect
// operators, whose domains are purpose-built.
func scopePolyCall(call *ir.Call) bool {
	switch callee := call.Callee.(type) {
	case *ir.Cons:
		return true
	case *ir.Op:
		switch callee.Name {
		case ir.OnDeviceOp, ir.DeviceCopyOp, ir.ShapeOfOp, ir.ShapeFuncOp,
			ir.ReshapeTensorOp, ir.AllocStorageOp, ir.AllocTensorOp:
			return false
		}
		return true
	}
	return false
}

// visitPrimCall constrains a call to a scope polymorphic primitive
// around the single scope shared by its arguments and result.
func (a *analyzer) visitPrimCall(call *ir.Call, funcDomain domainRef) error {
	shared := a.ds.funcResult(funcDomain)
	if err := a.ds.unifyExprCollapsed(call, shared); err != nil {
		return err
	}
	for _, arg := range call.Args {
		if err := a.visit(arg); err != nil {
			return err
		}
		if props := ir.GetOnDeviceProps(arg); props.Body != nil {
			// The annotation pins the whole primitive.
			if err := a.ds.unifyExact(shared, a.ds.forScope(props.Scope)); err != nil {
				return fmterr.Wrapf(err, call, "annotation %s conflicts with the scope %s of the primitive",
					props.Scope, a.ds.str(shared))
			}
			if err := a.ds.unifyExprCollapsed(arg, shared); err != nil {
				return err
			}
			continue
		}
		argDomain := a.ds.domainFor(arg)
		if a.ds.isFullyConstrained(argDomain) {
			// The argument's scope was fixed elsewhere: this is a
			// deliberate boundary, reconciled by a copy in Phase 3.
			continue
		}
		if err := a.ds.unifyCollapsed(argDomain, shared); err != nil {
			return fmterr.Wrapf(err, call, "argument %s does not fit on the scope %s of the primitive",
				arg.String(), a.ds.str(shared))
		}
	}
	return nil
}

// visitLet walks the spine iteratively: chains of lets can be
// thousands of bindings deep.
func (a *analyzer) visitLet(let *ir.Let) error {
	var expr ir.Expr = let
	for {
		inner, ok := expr.(*ir.Let)
		if !ok {
			break
		}
		// The bound variable holds the value it is bound to; the
		// body holds the value of the overall let.
		if err := a.ds.unifyExprExact(inner.Bound, inner.Value); err != nil {
			return err
		}
		if err := a.ds.unifyExprExact(inner, inner.Body); err != nil {
			return err
		}
		if err := a.visit(inner.Value); err != nil {
			return err
		}
		expr = inner.Body
	}
	return a.visit(expr)
}

func (a *analyzer) visitFunction(fn *ir.Function) error {
	// Primitive functions are compiled per call site; descending into
	// one would pin its parameters to a single scope.
	if fn.Attrs.Primitive {
		return nil
	}
	funcDomain := a.ds.domainFor(fn)
	if arity := a.ds.arity(funcDomain); arity != len(fn.Params) {
		return fmterr.Wrapf(ErrArityMismatch, fn, "function has %d parameters but its type has %d", len(fn.Params), arity)
	}
	if err := a.ds.unifyExact(a.ds.domainFor(fn.Body), a.ds.funcResult(funcDomain)); err != nil {
		return fmterr.Wrapf(err, fn, "function body scopes do not match the function result scopes")
	}
	for i, param := range fn.Params {
		if err := a.ds.unifyExact(a.ds.domainFor(param), a.ds.funcParam(funcDomain, i)); err != nil {
			return fmterr.Wrapf(err, param, "parameter scopes do not match the function scopes")
		}
	}
	// Scope attributes attached by an earlier run of the pass further
	// constrain the function's domain.
	if !fn.Attrs.ResultScope.IsFullyUnconstrained() {
		if len(fn.Attrs.ParamScopes) != len(fn.Params) {
			return fmterr.Wrapf(ErrArityMismatch, fn, "function has %d parameter scope attributes for %d parameters",
				len(fn.Attrs.ParamScopes), len(fn.Params))
		}
		children := make([]domainRef, 0, len(fn.Params)+1)
		for i, param := range fn.Params {
			children = append(children, a.ds.forScopeType(param.Typ, fn.Attrs.ParamScopes[i]))
		}
		children = append(children, a.ds.forScopeType(fn.Body.Type(), fn.Attrs.ResultScope))
		attrsDomain := a.ds.allocHigherOrder(children)
		if err := a.ds.unifyExact(funcDomain, attrsDomain); err != nil {
			return fmterr.Wrapf(err, fn, "function scopes %s are incompatible with its scope attributes %s",
				a.ds.str(funcDomain), a.ds.str(attrsDomain))
		}
	}
	return a.visit(fn.Body)
}

func (a *analyzer) visitTuple(tuple *ir.Tuple) error {
	for _, field := range tuple.Fields {
		if err := a.ds.unifyExprCollapsed(tuple, a.ds.domainFor(field)); err != nil {
			return err
		}
		if err := a.visit(field); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) visitIf(ife *ir.If) error {
	domain := a.ds.domainFor(ife)
	if err := a.ds.unifyExprCollapsed(ife.Cond, domain); err != nil {
		return err
	}
	if err := a.ds.unifyExprExact(ife.True, ife); err != nil {
		return err
	}
	if err := a.ds.unifyExprExact(ife.False, ife); err != nil {
		return err
	}
	if err := a.visit(ife.Cond); err != nil {
		return err
	}
	if err := a.visit(ife.True); err != nil {
		return err
	}
	return a.visit(ife.False)
}

// visitMatch unifies the scrutinee and every pattern variable with the
// match's domain collapsed to first-order: per-field scope tracking
// through patterns is out of scope. Clause bodies hold the value of
// the overall match.
func (a *analyzer) visitMatch(match *ir.Match) error {
	matchDomain := a.ds.domainFor(match)
	if err := a.ds.unifyExprCollapsed(match.Data, matchDomain); err != nil {
		return err
	}
	for _, clause := range match.Clauses {
		for _, bound := range clause.Pat.Vars(nil) {
			if err := a.ds.unifyExprCollapsed(match.Data, a.ds.domainFor(bound)); err != nil {
				return err
			}
		}
		if err := a.ds.unifyExprExact(clause.Body, match); err != nil {
			return err
		}
		if err := a.visit(clause.Body); err != nil {
			return err
		}
	}
	return a.visit(match.Data)
}
