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

// Package irhelper provides helper functions to build IR programmatically.
package irhelper

import (
	"github.com/gx-org/backend/dtype"
	"github.com/relgo-org/relgo/build/ir"
)

// F32 returns a float32 tensor type with the given axis lengths.
func F32(axes ...int) *ir.TensorType {
	return ir.TensorOf(dtype.Float32, axes...)
}

// Var returns a variable of the given type.
func Var(name string, typ ir.Type) *ir.Var {
	return &ir.Var{Name: name, Typ: typ}
}

// Const returns a constant of the given type.
func Const(typ ir.Type, data ...float64) *ir.Constant {
	return &ir.Constant{Data: data, Typ: typ}
}

// Fn returns a function whose result type is its body's type.
func Fn(params []*ir.Var, body ir.Expr) *ir.Function {
	return ir.NewFunc(params, body, body.Type())
}

// PrimFn returns a function carrying the primitive attribute.
func PrimFn(params []*ir.Var, body ir.Expr) *ir.Function {
	fn := Fn(params, body)
	fn.Attrs.Primitive = true
	return fn
}

// CallOp returns a call to a primitive operator with the given result type.
func CallOp(name string, typ ir.Type, args ...ir.Expr) *ir.Call {
	return &ir.Call{Callee: ir.OpRef(name), Args: args, Typ: typ}
}

// Add returns a call to the add operator typed like its first argument.
func Add(x, y ir.Expr) *ir.Call {
	return CallOp("add", x.Type(), x, y)
}

// Call returns an application of a function-typed callee, typed by the
// callee's result type.
func Call(callee ir.Expr, args ...ir.Expr) *ir.Call {
	funcType := callee.Type().(*ir.FuncType)
	return &ir.Call{Callee: callee, Args: args, Typ: funcType.Result}
}

// Let binds a variable to a value inside a body.
func Let(bound *ir.Var, value, body ir.Expr) *ir.Let {
	return &ir.Let{Bound: bound, Value: value, Body: body, Typ: body.Type()}
}

// Tuple builds a tuple from field expressions.
func Tuple(fields ...ir.Expr) *ir.Tuple {
	types := make([]ir.Type, len(fields))
	for i, field := range fields {
		types[i] = field.Type()
	}
	return &ir.Tuple{Fields: fields, Typ: &ir.TupleType{Fields: types}}
}

// Proj projects a field out of a tuple.
func Proj(tup ir.Expr, index int) *ir.TupleGetItem {
	tupleType := tup.Type().(*ir.TupleType)
	return &ir.TupleGetItem{Tup: tup, Index: index, Typ: tupleType.Fields[index]}
}

// If builds a conditional typed by its true branch.
func If(cond, t, f ir.Expr) *ir.If {
	return &ir.If{Cond: cond, True: t, False: f, Typ: t.Type()}
}

// Module returns a module defining main.
func Module(main *ir.Function) *ir.Module {
	mod := ir.NewModule()
	mod.AddFunc("main", main)
	return mod
}
