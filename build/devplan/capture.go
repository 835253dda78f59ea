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
	"github.com/relgo-org/relgo/build/scope"
)

// Phase 3 reifies the solved domains back into the module:
//
//   - on_device calls are dropped; their constraints are consumed.
//     device_copy calls whose canonicalized endpoints are equal are
//     dropped too.
//   - Every non-primitive function gets param_scopes and result_scope
//     attributes.
//   - A device_copy is inserted wherever a child's scope differs from
//     the scope its context requires, and an on_device wherever the
//     required scope differs from the lexically enclosing one. A later
//     transform can then recover any sub-expression's scope by looking
//     only at the nearest enclosing annotation or function attribute.
//
// Operator and constructor references are never wrapped: they are
// scope polymorphic and carry no storage of their own.
type capturer struct {
	mod *ir.Module
	ds  *domains
}

// capture rewrites every function of the module against the solved
// domain map.
func (c *capturer) capture() (*ir.Module, error) {
	out := ir.NewModule()
	out.TypeDefs = c.mod.TypeDefs
	for gv, fn := range c.mod.Funcs() {
		rewritten, err := c.visit(fn)
		if err != nil {
			return nil, err
		}
		out.Add(gv, rewritten.(*ir.Function))
	}
	return out, nil
}

// scopeOf returns the solved scope of an expression, looking through
// on_device calls the same way they will be dropped from the output.
// Higher-order expressions report their result scope.
func (c *capturer) scopeOf(e ir.Expr) (scope.Scope, error) {
	if props := ir.GetOnDeviceProps(e); props.Body != nil {
		e = props.Body
	}
	domain, ok := c.ds.lookup(e)
	if !ok {
		return scope.Scope{}, fmterr.Internalf(e, "expression was not analyzed")
	}
	s := c.ds.resultScope(domain)
	if s.IsFullyUnconstrained() {
		return scope.Scope{}, fmterr.Internalf(e, "no scope was determined for expression")
	}
	return s, nil
}

// maybeOnDevice wraps an expression in a fixed on_device annotation.
// Operator and constructor references are never wrapped, and nested
// annotations with the same scope collapse into one.
func maybeOnDevice(e ir.Expr, s scope.Scope, isFixed bool) ir.Expr {
	if s.IsFullyUnconstrained() {
		return e
	}
	switch e.(type) {
	case *ir.Op, *ir.Cons:
		return e
	}
	if props := ir.GetOnDeviceProps(e); props.Body != nil && props.Scope.Equal(s) {
		return ir.OnDevice(props.Body, s, isFixed || props.IsFixed)
	}
	return ir.OnDevice(e, s, isFixed)
}

// visitChild reconciles a child's scope with both the scope its
// context expects and the scope a downstream transform would infer
// from the lexically enclosing annotation or function attribute.
//
// If the child's scope differs from the expected one the child is
// rewritten as
//
//	device_copy(on_device(child', scope=child, fixed=true), src=child, dst=expected)
//
// and if the expected scope differs from the lexical one the result is
// (further) wrapped in a fixed on_device annotation.
func (c *capturer) visitChild(lexical, expected, child scope.Scope, childExpr ir.Expr) (ir.Expr, error) {
	switch childExpr.(type) {
	case *ir.Op, *ir.Cons:
		return childExpr, nil
	}
	result, err := c.visit(childExpr)
	if err != nil {
		return nil, err
	}
	if !child.Equal(expected) {
		result = maybeOnDevice(result, child, true)
		result = ir.DeviceCopy(result, child, expected)
	}
	if !expected.Equal(lexical) {
		result = maybeOnDevice(result, expected, true)
	}
	return result, nil
}

// visitChildOf rewrites a direct child expected on the same scope as
// its parent.
func (c *capturer) visitChildOf(parent, child ir.Expr) (ir.Expr, error) {
	expected, err := c.scopeOf(parent)
	if err != nil {
		return nil, err
	}
	childScope, err := c.scopeOf(child)
	if err != nil {
		return nil, err
	}
	return c.visitChild(expected, expected, childScope, child)
}

func (c *capturer) visit(e ir.Expr) (ir.Expr, error) {
	switch x := e.(type) {
	case *ir.Call:
		return c.visitCall(x)
	case *ir.Function:
		return c.visitFunction(x)
	case *ir.Let:
		return c.visitLet(x)
	case *ir.Tuple:
		fields := make([]ir.Expr, len(x.Fields))
		for i, field := range x.Fields {
			var err error
			if fields[i], err = c.visitChildOf(x, field); err != nil {
				return nil, err
			}
		}
		return &ir.Tuple{Fields: fields, Typ: x.Typ}, nil
	case *ir.TupleGetItem:
		tup, err := c.visitChildOf(x, x.Tup)
		if err != nil {
			return nil, err
		}
		return &ir.TupleGetItem{Tup: tup, Index: x.Index, Typ: x.Typ}, nil
	case *ir.If:
		cond, err := c.visitChildOf(x, x.Cond)
		if err != nil {
			return nil, err
		}
		t, err := c.visitChildOf(x, x.True)
		if err != nil {
			return nil, err
		}
		f, err := c.visitChildOf(x, x.False)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, True: t, False: f, Typ: x.Typ}, nil
	case *ir.Match:
		data, err := c.visitChildOf(x, x.Data)
		if err != nil {
			return nil, err
		}
		clauses := make([]*ir.Clause, len(x.Clauses))
		for i, clause := range x.Clauses {
			body, err := c.visitChildOf(x, clause.Body)
			if err != nil {
				return nil, err
			}
			clauses[i] = &ir.Clause{Pat: clause.Pat, Body: body}
		}
		return &ir.Match{Data: data, Clauses: clauses, Complete: x.Complete, Typ: x.Typ}, nil
	case *ir.RefCreate:
		value, err := c.visitChildOf(x, x.Value)
		if err != nil {
			return nil, err
		}
		return &ir.RefCreate{Value: value, Typ: x.Typ}, nil
	case *ir.RefRead:
		ref, err := c.visitChildOf(x, x.Ref)
		if err != nil {
			return nil, err
		}
		return &ir.RefRead{Ref: ref, Typ: x.Typ}, nil
	case *ir.RefWrite:
		ref, err := c.visitChildOf(x, x.Ref)
		if err != nil {
			return nil, err
		}
		value, err := c.visitChildOf(x, x.Value)
		if err != nil {
			return nil, err
		}
		return &ir.RefWrite{Ref: ref, Value: value, Typ: x.Typ}, nil
	}
	// Variables, globals, constants, operator and constructor
	// references are returned unchanged.
	return e, nil
}

func (c *capturer) visitFunction(fn *ir.Function) (ir.Expr, error) {
	if fn.Attrs.Primitive {
		return fn, nil
	}
	funcDomain, ok := c.ds.lookup(fn)
	if !ok {
		return nil, fmterr.Internalf(fn, "function was not analyzed")
	}
	resultScope := c.ds.resultScope(funcDomain)
	if resultScope.IsFullyUnconstrained() {
		return nil, fmterr.Internalf(fn, "no scope was determined for function result")
	}
	paramScopes := make([]scope.Scope, len(fn.Params))
	for i := range fn.Params {
		paramScopes[i] = c.ds.resultScope(c.ds.funcParam(funcDomain, i))
		if paramScopes[i].IsFullyUnconstrained() {
			return nil, fmterr.Internalf(fn.Params[i], "no scope was determined for parameter")
		}
	}
	bodyScope, err := c.scopeOf(fn.Body)
	if err != nil {
		return nil, err
	}
	// The body may have begun with an annotation, so a copy may be
	// required right under the function.
	body, err := c.visitChild(resultScope, resultScope, bodyScope, fn.Body)
	if err != nil {
		return nil, err
	}
	return &ir.Function{
		Params:  fn.Params,
		Body:    body,
		RetType: fn.RetType,
		Attrs: ir.FuncAttrs{
			ParamScopes: paramScopes,
			ResultScope: resultScope,
		},
		Typ: fn.Typ,
	}, nil
}

func (c *capturer) visitCall(call *ir.Call) (ir.Expr, error) {
	// The annotations have served their purpose: pinch them out.
	if props := ir.GetOnDeviceProps(call); props.Body != nil {
		return c.visit(props.Body)
	}
	callScope, err := c.scopeOf(call)
	if err != nil {
		return nil, err
	}
	if props := ir.GetDeviceCopyProps(call); props.Body != nil {
		src := c.ds.cfg.Canonical(props.Src)
		dst := c.ds.cfg.Canonical(props.Dst)
		if src.Equal(dst) {
			// The copy is a no-op after canonicalization.
			return c.visit(props.Body)
		}
		return c.visitChild(dst, dst, src, props.Body)
	}
	funcDomain, err := c.ds.domainForCallee(call)
	if err != nil {
		return nil, err
	}
	resultScope := c.ds.resultScope(funcDomain)
	if resultScope.IsFullyUnconstrained() {
		return nil, fmterr.Internalf(call, "no scope was determined for callee result")
	}
	callee, err := c.visitChild(callScope, callScope, resultScope, call.Callee)
	if err != nil {
		return nil, err
	}
	// Arguments live on the scopes of the callee's parameters; any
	// difference from the call's own scope is spelled out so scopes
	// stay recoverable lexically.
	args := make([]ir.Expr, len(call.Args))
	for i, arg := range call.Args {
		paramScope := c.ds.resultScope(c.ds.funcParam(funcDomain, i))
		if paramScope.IsFullyUnconstrained() {
			return nil, fmterr.Internalf(call, "no scope was determined for argument %d", i)
		}
		argScope, err := c.scopeOf(arg)
		if err != nil {
			return nil, err
		}
		if args[i], err = c.visitChild(callScope, paramScope, argScope, arg); err != nil {
			return nil, err
		}
	}
	return &ir.Call{Callee: callee, Args: args, Attrs: call.Attrs, Typ: call.Typ}, nil
}

// visitLet walks a spine of lets sharing one scope iteratively; a
// binding whose scope differs ends the spine and is handled as a
// nested expression.
func (c *capturer) visitLet(let *ir.Let) (ir.Expr, error) {
	letScope, err := c.scopeOf(let)
	if err != nil {
		return nil, err
	}
	type binding struct {
		orig  *ir.Let
		value ir.Expr
	}
	var bindings []binding
	var expr ir.Expr = let
	for {
		inner, ok := expr.(*ir.Let)
		if !ok {
			break
		}
		innerScope, err := c.scopeOf(inner)
		if err != nil {
			return nil, err
		}
		if !innerScope.Equal(letScope) {
			// Scope transition within the spine.
			break
		}
		boundScope, err := c.scopeOf(inner.Bound)
		if err != nil {
			return nil, err
		}
		valueScope, err := c.scopeOf(inner.Value)
		if err != nil {
			return nil, err
		}
		value, err := c.visitChild(letScope, boundScope, valueScope, inner.Value)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, binding{orig: inner, value: value})
		expr = inner.Body
	}
	bodyScope, err := c.scopeOf(expr)
	if err != nil {
		return nil, err
	}
	body, err := c.visitChild(letScope, letScope, bodyScope, expr)
	if err != nil {
		return nil, err
	}
	for i := len(bindings) - 1; i >= 0; i-- {
		b := bindings[i]
		body = &ir.Let{Bound: b.orig.Bound, Value: b.value, Body: body, Typ: b.orig.Typ}
	}
	return body, nil
}
