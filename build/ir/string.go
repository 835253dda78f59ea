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
	"fmt"
	"strings"
)

// The printed form spells out every attribute that scope planning can
// produce, so two structurally equal expressions always print the
// same and two differing expressions print differently. Tests compare
// rewritten modules through this form.

// String representation of the variable.
func (x *Var) String() string { return "%" + x.Name }

// String representation of the global.
func (x *GlobalVar) String() string { return "@" + x.Name }

// String representation of the constant.
func (x *Constant) String() string {
	if len(x.Data) == 0 {
		return fmt.Sprintf("const(%s)", x.Typ.String())
	}
	return fmt.Sprintf("const(%v, %s)", x.Data, x.Typ.String())
}

// String representation of the tuple.
func (x *Tuple) String() string {
	fields := make([]string, len(x.Fields))
	for i, field := range x.Fields {
		fields[i] = field.String()
	}
	return "(" + strings.Join(fields, ", ") + ")"
}

// String representation of the projection.
func (x *TupleGetItem) String() string {
	return fmt.Sprintf("%s.%d", x.Tup.String(), x.Index)
}

func (attrs FuncAttrs) String() string {
	var parts []string
	if attrs.Primitive {
		parts = append(parts, "primitive")
	}
	if attrs.ParamScopes != nil {
		scopes := make([]string, len(attrs.ParamScopes))
		for i, s := range attrs.ParamScopes {
			scopes[i] = s.String()
		}
		parts = append(parts, "param_scopes=["+strings.Join(scopes, ", ")+"]")
	}
	if !attrs.ResultScope.IsFullyUnconstrained() {
		parts = append(parts, "result_scope="+attrs.ResultScope.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ", ") + "] "
}

// String representation of the function.
func (x *Function) String() string {
	params := make([]string, len(x.Params))
	for i, param := range x.Params {
		params[i] = fmt.Sprintf("%s: %s", param.String(), param.Typ.String())
	}
	return fmt.Sprintf("fn(%s) -> %s %s{ %s }",
		strings.Join(params, ", "), x.RetType.String(), x.Attrs.String(), x.Body.String())
}

// String representation of the call.
func (x *Call) String() string {
	args := make([]string, len(x.Args))
	for i, arg := range x.Args {
		args[i] = arg.String()
	}
	argList := strings.Join(args, ", ")
	switch attrs := x.Attrs.(type) {
	case OnDeviceAttrs:
		return fmt.Sprintf("%s(%s, scope=%s, fixed=%t)", x.Callee.String(), argList, attrs.Scope, attrs.IsFixed)
	case DeviceCopyAttrs:
		return fmt.Sprintf("%s(%s, src=%s, dst=%s)", x.Callee.String(), argList, attrs.Src, attrs.Dst)
	}
	return fmt.Sprintf("%s(%s)", x.Callee.String(), argList)
}

// String representation of the let. Chains of lets are printed
// iteratively to keep deep spines from overflowing the stack.
func (x *Let) String() string {
	b := strings.Builder{}
	var expr Expr = x
	for {
		let, ok := expr.(*Let)
		if !ok {
			break
		}
		fmt.Fprintf(&b, "let %s = %s; ", let.Bound.String(), let.Value.String())
		expr = let.Body
	}
	b.WriteString(expr.String())
	return b.String()
}

// String representation of the conditional.
func (x *If) String() string {
	return fmt.Sprintf("if %s { %s } else { %s }", x.Cond.String(), x.True.String(), x.False.String())
}

// String representation of the match.
func (x *Match) String() string {
	clauses := make([]string, len(x.Clauses))
	for i, clause := range x.Clauses {
		clauses[i] = fmt.Sprintf("%s => %s", clause.Pat.String(), clause.Body.String())
	}
	return fmt.Sprintf("match %s { %s }", x.Data.String(), strings.Join(clauses, "; "))
}

// String representation of the reference allocation.
func (x *RefCreate) String() string {
	return fmt.Sprintf("ref(%s)", x.Value.String())
}

// String representation of the reference read.
func (x *RefRead) String() string {
	return fmt.Sprintf("refread(%s)", x.Ref.String())
}

// String representation of the reference write.
func (x *RefWrite) String() string {
	return fmt.Sprintf("refwrite(%s, %s)", x.Ref.String(), x.Value.String())
}

// String representation of the operator reference.
func (x *Op) String() string { return x.Name }

// String representation of the constructor reference.
func (x *Cons) String() string { return x.Name }

// String representation of the wildcard pattern.
func (*PatternWildcard) String() string { return "_" }

// String representation of the variable pattern.
func (p *PatternVar) String() string { return p.Bound.String() }

// String representation of the constructor pattern.
func (p *PatternCons) String() string {
	subs := make([]string, len(p.Sub))
	for i, sub := range p.Sub {
		subs[i] = sub.String()
	}
	return fmt.Sprintf("%s(%s)", p.Cons.Name, strings.Join(subs, ", "))
}

// String representation of the tuple pattern.
func (p *PatternTuple) String() string {
	subs := make([]string, len(p.Sub))
	for i, sub := range p.Sub {
		subs[i] = sub.String()
	}
	return "(" + strings.Join(subs, ", ") + ")"
}
