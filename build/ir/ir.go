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

// Package ir is the tensor Intermediate Representation (IR) tree.
//
// The IR is a pure, higher-order expression language over tensors:
// variables, constants, tuples, function abstractions, applications,
// let-bindings, conditionals, pattern matches over algebraic data
// types, and mutable references. A program is a Module mapping global
// names to functions, plus data type definitions.
//
// Expression nodes are identified by pointer: passes that attach
// information to expressions key it on node identity, so a node
// rebuilt by a rewriting pass is a different node to them.
package ir

import "github.com/relgo-org/relgo/build/scope"

// ----------------------------------------------------------------------------
// Types of node in the tree.
type (
	// Node in the tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()
	}

	// Expr is an expression node with a checked type.
	Expr interface {
		Node

		// Type is the checked type of the expression.
		Type() Type

		// String representation of the expression.
		String() string
	}
)

// ----------------------------------------------------------------------------
// Expressions.
type (
	// Var is a reference to a local variable or function parameter.
	// A variable is bound once; all references share the node.
	Var struct {
		Name string
		Typ  Type
	}

	// GlobalVar is a reference to a module-level function.
	GlobalVar struct {
		Name string
		Typ  Type
	}

	// Constant is a tensor literal.
	Constant struct {
		Data []float64
		Typ  Type
	}

	// Tuple builds a tuple from its field expressions.
	Tuple struct {
		Fields []Expr
		Typ    Type
	}

	// TupleGetItem projects a field out of a tuple.
	TupleGetItem struct {
		Tup   Expr
		Index int
		Typ   Type
	}

	// FuncAttrs are the attributes attached to a function.
	FuncAttrs struct {
		// Primitive marks a fused function compiled per call site.
		// Passes never descend into a primitive function's body.
		Primitive bool
		// ParamScopes are the storage scopes of the parameters,
		// one per parameter. Nil until scope planning has run.
		ParamScopes []scope.Scope
		// ResultScope is the storage scope of the function result.
		ResultScope scope.Scope
	}

	// Function is a function abstraction.
	Function struct {
		Params  []*Var
		Body    Expr
		RetType Type
		Attrs   FuncAttrs
		Typ     *FuncType
	}

	// Call applies a callee to arguments. The callee is an operator
	// reference, a constructor reference, or any expression of
	// function type.
	Call struct {
		Callee Expr
		Args   []Expr
		Attrs  CallAttrs
		Typ    Type
	}

	// Let binds a variable to a value inside a body.
	Let struct {
		Bound *Var
		Value Expr
		Body  Expr
		Typ   Type
	}

	// If evaluates one of two branches depending on a condition.
	If struct {
		Cond  Expr
		True  Expr
		False Expr
		Typ   Type
	}

	// Match destructures a value of algebraic data type.
	Match struct {
		Data     Expr
		Clauses  []*Clause
		Complete bool
		Typ      Type
	}

	// Clause is one arm of a match expression.
	Clause struct {
		Pat  Pattern
		Body Expr
	}

	// RefCreate allocates a mutable reference cell.
	RefCreate struct {
		Value Expr
		Typ   Type
	}

	// RefRead reads the current value of a reference cell.
	RefRead struct {
		Ref Expr
		Typ Type
	}

	// RefWrite stores a new value into a reference cell.
	RefWrite struct {
		Ref   Expr
		Value Expr
		Typ   Type
	}

	// Op is a reference to a primitive operator. Operator references
	// are interned: two references to the same operator are the same
	// node. Operators are scope polymorphic, so an operator reference
	// has no type of its own; its scopes are solved per call site.
	Op struct {
		Name string
	}

	// Cons is a reference to a data type constructor. Like operators,
	// constructors are scope polymorphic.
	Cons struct {
		Name  string
		Arity int
		Typ   Type
	}
)

var (
	_ Expr = (*Var)(nil)
	_ Expr = (*GlobalVar)(nil)
	_ Expr = (*Constant)(nil)
	_ Expr = (*Tuple)(nil)
	_ Expr = (*TupleGetItem)(nil)
	_ Expr = (*Function)(nil)
	_ Expr = (*Call)(nil)
	_ Expr = (*Let)(nil)
	_ Expr = (*If)(nil)
	_ Expr = (*Match)(nil)
	_ Expr = (*RefCreate)(nil)
	_ Expr = (*RefRead)(nil)
	_ Expr = (*RefWrite)(nil)
	_ Expr = (*Op)(nil)
	_ Expr = (*Cons)(nil)
)

func (*Var) node()          {}
func (*GlobalVar) node()    {}
func (*Constant) node()     {}
func (*Tuple) node()        {}
func (*TupleGetItem) node() {}
func (*Function) node()     {}
func (*Call) node()         {}
func (*Let) node()          {}
func (*If) node()           {}
func (*Match) node()        {}
func (*Clause) node()       {}
func (*RefCreate) node()    {}
func (*RefRead) node()      {}
func (*RefWrite) node()     {}
func (*Op) node()           {}
func (*Cons) node()         {}

// Type of the variable.
func (x *Var) Type() Type { return x.Typ }

// Type of the function referenced by the global.
func (x *GlobalVar) Type() Type { return x.Typ }

// Type of the constant.
func (x *Constant) Type() Type { return x.Typ }

// Type of the tuple.
func (x *Tuple) Type() Type { return x.Typ }

// Type of the projected field.
func (x *TupleGetItem) Type() Type { return x.Typ }

// Type of the function.
func (x *Function) Type() Type { return x.Typ }

// FuncT returns the function type of the abstraction.
func (x *Function) FuncT() *FuncType { return x.Typ }

// Type of the call result.
func (x *Call) Type() Type { return x.Typ }

// Type of the let, which is the type of its body.
func (x *Let) Type() Type { return x.Typ }

// Type of the conditional, shared by both branches.
func (x *If) Type() Type { return x.Typ }

// Type of the match, shared by every clause body.
func (x *Match) Type() Type { return x.Typ }

// Type of the reference cell.
func (x *RefCreate) Type() Type { return x.Typ }

// Type of the value read from the reference.
func (x *RefRead) Type() Type { return x.Typ }

// Type of the write, the unit tuple.
func (x *RefWrite) Type() Type { return x.Typ }

// Type of an operator reference. Operators are polymorphic so the
// reference itself has no type.
func (x *Op) Type() Type { return nil }

// Type of the constructed data type value.
func (x *Cons) Type() Type { return x.Typ }

// ----------------------------------------------------------------------------
// Match patterns.
type (
	// Pattern matches the shape of a value in a match clause.
	Pattern interface {
		Node

		// Vars appends the variables bound by the pattern.
		Vars([]*Var) []*Var

		// String representation of the pattern.
		String() string
	}

	// PatternWildcard matches anything and binds nothing.
	PatternWildcard struct{}

	// PatternVar binds the matched value to a variable.
	PatternVar struct {
		Bound *Var
	}

	// PatternCons matches a constructor application.
	PatternCons struct {
		Cons *Cons
		Sub  []Pattern
	}

	// PatternTuple matches a tuple field-wise.
	PatternTuple struct {
		Sub []Pattern
	}
)

var (
	_ Pattern = (*PatternWildcard)(nil)
	_ Pattern = (*PatternVar)(nil)
	_ Pattern = (*PatternCons)(nil)
	_ Pattern = (*PatternTuple)(nil)
)

func (*PatternWildcard) node() {}
func (*PatternVar) node()      {}
func (*PatternCons) node()     {}
func (*PatternTuple) node()    {}

// Vars returns vars unchanged: a wildcard binds nothing.
func (*PatternWildcard) Vars(vars []*Var) []*Var { return vars }

// Vars appends the bound variable.
func (p *PatternVar) Vars(vars []*Var) []*Var { return append(vars, p.Bound) }

// Vars appends the variables bound by the sub-patterns.
func (p *PatternCons) Vars(vars []*Var) []*Var {
	for _, sub := range p.Sub {
		vars = sub.Vars(vars)
	}
	return vars
}

// Vars appends the variables bound by the field patterns.
func (p *PatternTuple) Vars(vars []*Var) []*Var {
	for _, sub := range p.Sub {
		vars = sub.Vars(vars)
	}
	return vars
}

// ----------------------------------------------------------------------------
// Data type definitions.

// DataDecl defines an algebraic data type and its constructors.
type DataDecl struct {
	Name string
	Cons []*Cons
}

func (*DataDecl) node() {}

// NewFunc returns a function given its parameters and body, computing
// its function type. Attributes are left empty.
func NewFunc(params []*Var, body Expr, retType Type) *Function {
	paramTypes := make([]Type, len(params))
	for i, param := range params {
		paramTypes[i] = param.Typ
	}
	return &Function{
		Params:  params,
		Body:    body,
		RetType: retType,
		Typ:     &FuncType{Params: paramTypes, Result: retType},
	}
}
