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

import "github.com/relgo-org/relgo/build/ir"

// Phase 0 rewrites scope annotations to remove degrees of freedom the
// solver would otherwise default inconsistently:
//
//	let %x = on_device(e, scope=s)
//	==> let %x = on_device(e, scope=s, fixed=true)
//
//	fn(%x) { on_device(e, scope=s) }
//	==> fn(%x) { on_device(e, scope=s, fixed=true) }
//
//	on_device(t, scope=s).i
//	==> on_device(t.i, scope=s)
//
// The last rewrite prefers copying the projection over projecting from
// a copy of the whole tuple. Fixing let-bound and tail annotations
// also makes the pass idempotent when run twice.
type normalizer struct{}

// normalize rewrites every function of a module, keeping any function
// it leaves untouched.
func normalize(mod *ir.Module) *ir.Module {
	norm := normalizer{}
	out := ir.NewModule()
	out.TypeDefs = mod.TypeDefs
	for gv, fn := range mod.Funcs() {
		out.Add(gv, norm.rewriteFunc(fn))
	}
	return out
}

func (norm normalizer) rewriteFunc(fn *ir.Function) *ir.Function {
	body := norm.rewrite(fn.Body)
	if props := ir.GetOnDeviceProps(body); props.Body != nil && !props.IsFixed {
		body = ir.OnDevice(props.Body, props.Scope, true)
	}
	if body == fn.Body {
		return fn
	}
	out := *fn
	out.Body = body
	return &out
}

func (norm normalizer) rewrite(e ir.Expr) ir.Expr {
	switch x := e.(type) {
	case *ir.Let:
		return norm.rewriteLet(x)
	case *ir.TupleGetItem:
		tup := norm.rewrite(x.Tup)
		if props := ir.GetOnDeviceProps(tup); props.Body != nil && !props.IsFixed {
			proj := &ir.TupleGetItem{Tup: props.Body, Index: x.Index, Typ: x.Typ}
			return ir.OnDevice(proj, props.Scope, false)
		}
		if tup == x.Tup {
			return x
		}
		return &ir.TupleGetItem{Tup: tup, Index: x.Index, Typ: x.Typ}
	case *ir.Function:
		return norm.rewriteFunc(x)
	case *ir.Call:
		callee := norm.rewrite(x.Callee)
		args, changed := norm.rewriteAll(x.Args)
		if callee == x.Callee && !changed {
			return x
		}
		return &ir.Call{Callee: callee, Args: args, Attrs: x.Attrs, Typ: x.Typ}
	case *ir.Tuple:
		fields, changed := norm.rewriteAll(x.Fields)
		if !changed {
			return x
		}
		return &ir.Tuple{Fields: fields, Typ: x.Typ}
	case *ir.If:
		cond, t, f := norm.rewrite(x.Cond), norm.rewrite(x.True), norm.rewrite(x.False)
		if cond == x.Cond && t == x.True && f == x.False {
			return x
		}
		return &ir.If{Cond: cond, True: t, False: f, Typ: x.Typ}
	case *ir.Match:
		data := norm.rewrite(x.Data)
		changed := data != x.Data
		clauses := make([]*ir.Clause, len(x.Clauses))
		for i, clause := range x.Clauses {
			body := norm.rewrite(clause.Body)
			if body != clause.Body {
				changed = true
				clauses[i] = &ir.Clause{Pat: clause.Pat, Body: body}
			} else {
				clauses[i] = clause
			}
		}
		if !changed {
			return x
		}
		return &ir.Match{Data: data, Clauses: clauses, Complete: x.Complete, Typ: x.Typ}
	case *ir.RefCreate:
		value := norm.rewrite(x.Value)
		if value == x.Value {
			return x
		}
		return &ir.RefCreate{Value: value, Typ: x.Typ}
	case *ir.RefRead:
		ref := norm.rewrite(x.Ref)
		if ref == x.Ref {
			return x
		}
		return &ir.RefRead{Ref: ref, Typ: x.Typ}
	case *ir.RefWrite:
		ref, value := norm.rewrite(x.Ref), norm.rewrite(x.Value)
		if ref == x.Ref && value == x.Value {
			return x
		}
		return &ir.RefWrite{Ref: ref, Value: value, Typ: x.Typ}
	}
	// Variables, globals, constants, operator and constructor
	// references rewrite to themselves.
	return e
}

// rewriteAll rewrites each expression in exprs, reporting whether any
// of them changed.
func (norm normalizer) rewriteAll(exprs []ir.Expr) ([]ir.Expr, bool) {
	changed := false
	out := make([]ir.Expr, len(exprs))
	for i, e := range exprs {
		r := norm.rewrite(e)
		if r != e {
			changed = true
		}
		out[i] = r
	}
	if !changed {
		return exprs, false
	}
	return out, true
}

// rewriteLet walks a let spine iteratively: chains of lets can be
// thousands of bindings deep.
func (norm normalizer) rewriteLet(let *ir.Let) ir.Expr {
	type binding struct {
		orig  *ir.Let
		value ir.Expr
	}
	var bindings []binding
	changed := false
	var expr ir.Expr = let
	for {
		inner, ok := expr.(*ir.Let)
		if !ok {
			break
		}
		value := norm.rewrite(inner.Value)
		if props := ir.GetOnDeviceProps(value); props.Body != nil && !props.IsFixed {
			value = ir.OnDevice(props.Body, props.Scope, true)
		}
		if value != inner.Value {
			changed = true
		}
		bindings = append(bindings, binding{orig: inner, value: value})
		expr = inner.Body
	}
	body := norm.rewrite(expr)
	if body != expr {
		changed = true
	}
	if !changed {
		return let
	}
	for i := len(bindings) - 1; i >= 0; i-- {
		b := bindings[i]
		body = &ir.Let{Bound: b.orig.Bound, Value: b.value, Body: body, Typ: b.orig.Typ}
	}
	return body
}
