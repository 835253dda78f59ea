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

// Verify checks the output contract of PlanScopes on a module and
// returns every violation found:
//
//   - every non-primitive function carries concrete param_scopes and
//     result_scope attributes;
//   - every remaining on_device call is fixed and marks a scope that
//     differs from the lexically enclosing one;
//   - every device_copy has distinct endpoints, with its argument
//     annotated on the source scope;
//   - primitive functions contain no annotations: planning after
//     fusion moved an annotation inside a primitive body, which the
//     planner conservatively rejects.
type verifier struct {
	cfg  *scope.Config
	errs fmterr.Errors
}

// Verify returns nil iff mod satisfies the scope planning output
// contract. All violations are accumulated into the returned error.
func Verify(mod *ir.Module, cfg *scope.Config) error {
	v := &verifier{cfg: cfg}
	for _, fn := range mod.Funcs() {
		v.verifyFunc(fn)
	}
	return v.errs.Err()
}

func (v *verifier) verifyFunc(fn *ir.Function) {
	if fn.Attrs.Primitive {
		v.verifyPrimitive(fn.Body)
		return
	}
	if fn.Attrs.ResultScope.IsFullyUnconstrained() {
		v.errs.Appendf(fn, "function has no result scope attribute")
		return
	}
	if len(fn.Attrs.ParamScopes) != len(fn.Params) {
		v.errs.Appendf(fn, "function has %d parameter scopes for %d parameters",
			len(fn.Attrs.ParamScopes), len(fn.Params))
		return
	}
	for i, s := range fn.Attrs.ParamScopes {
		if s.IsFullyUnconstrained() {
			v.errs.Appendf(fn.Params[i], "parameter has no scope attribute")
		}
	}
	v.verifyExpr(fn.Body, fn.Attrs.ResultScope)
}

// verifyExpr walks an expression with the scope a downstream transform
// would infer from the lexically enclosing annotation or function
// attribute.
func (v *verifier) verifyExpr(e ir.Expr, lexical scope.Scope) {
	if props := ir.GetOnDeviceProps(e); props.Body != nil {
		if !props.IsFixed {
			v.errs.Appendf(e, "remaining annotation is not fixed")
		}
		if v.cfg.Canonical(props.Scope).Equal(lexical) {
			v.errs.Appendf(e, "annotation scope %s is redundant with the enclosing scope", props.Scope)
		}
		v.verifyExpr(props.Body, v.cfg.Canonical(props.Scope))
		return
	}
	if props := ir.GetDeviceCopyProps(e); props.Body != nil {
		src, dst := v.cfg.Canonical(props.Src), v.cfg.Canonical(props.Dst)
		if src.Equal(dst) {
			v.errs.Appendf(e, "copy endpoints are both %s", src)
		}
		inner := ir.GetOnDeviceProps(props.Body)
		if inner.Body == nil {
			v.errs.Appendf(e, "copy argument is not annotated with the source scope")
		} else if !v.cfg.Canonical(inner.Scope).Equal(src) {
			v.errs.Appendf(e, "copy argument is annotated %s but the copy source is %s", inner.Scope, src)
		}
		v.verifyExpr(props.Body, lexical)
		return
	}
	switch x := e.(type) {
	case *ir.Call:
		v.verifyExpr(x.Callee, lexical)
		for _, arg := range x.Args {
			v.verifyExpr(arg, lexical)
		}
	case *ir.Function:
		v.verifyFunc(x)
	case *ir.Let:
		var expr ir.Expr = x
		for {
			inner, ok := expr.(*ir.Let)
			if !ok {
				break
			}
			v.verifyExpr(inner.Value, lexical)
			expr = inner.Body
		}
		v.verifyExpr(expr, lexical)
	case *ir.Tuple:
		for _, field := range x.Fields {
			v.verifyExpr(field, lexical)
		}
	case *ir.TupleGetItem:
		v.verifyExpr(x.Tup, lexical)
	case *ir.If:
		v.verifyExpr(x.Cond, lexical)
		v.verifyExpr(x.True, lexical)
		v.verifyExpr(x.False, lexical)
	case *ir.Match:
		v.verifyExpr(x.Data, lexical)
		for _, clause := range x.Clauses {
			v.verifyExpr(clause.Body, lexical)
		}
	case *ir.RefCreate:
		v.verifyExpr(x.Value, lexical)
	case *ir.RefRead:
		v.verifyExpr(x.Ref, lexical)
	case *ir.RefWrite:
		v.verifyExpr(x.Ref, lexical)
		v.verifyExpr(x.Value, lexical)
	}
}

// verifyPrimitive rejects annotations inside a primitive function body.
func (v *verifier) verifyPrimitive(e ir.Expr) {
	if props := ir.GetOnDeviceProps(e); props.Body != nil {
		v.errs.Appendf(e, "annotation inside a primitive function")
		v.verifyPrimitive(props.Body)
		return
	}
	switch x := e.(type) {
	case *ir.Call:
		v.verifyPrimitive(x.Callee)
		for _, arg := range x.Args {
			v.verifyPrimitive(arg)
		}
	case *ir.Function:
		v.verifyPrimitive(x.Body)
	case *ir.Let:
		var expr ir.Expr = x
		for {
			inner, ok := expr.(*ir.Let)
			if !ok {
				break
			}
			v.verifyPrimitive(inner.Value)
			expr = inner.Body
		}
		v.verifyPrimitive(expr)
	case *ir.Tuple:
		for _, field := range x.Fields {
			v.verifyPrimitive(field)
		}
	case *ir.TupleGetItem:
		v.verifyPrimitive(x.Tup)
	case *ir.If:
		v.verifyPrimitive(x.Cond)
		v.verifyPrimitive(x.True)
		v.verifyPrimitive(x.False)
	case *ir.Match:
		v.verifyPrimitive(x.Data)
		for _, clause := range x.Clauses {
			v.verifyPrimitive(clause.Body)
		}
	case *ir.RefCreate:
		v.verifyPrimitive(x.Value)
	case *ir.RefRead:
		v.verifyPrimitive(x.Ref)
	case *ir.RefWrite:
		v.verifyPrimitive(x.Ref)
		v.verifyPrimitive(x.Value)
	}
}
