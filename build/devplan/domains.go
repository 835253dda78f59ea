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
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/relgo-org/relgo/build/fmterr"
	"github.com/relgo-org/relgo/build/ir"
	"github.com/relgo-org/relgo/build/scope"
	"golang.org/x/exp/maps"
)

// A domain describes where an expression's value is stored. A
// first-order domain holds a scope, possibly unconstrained. A
// higher-order domain describes a function value: one child domain per
// parameter plus one for the result, nested to arbitrary depth.
//
// Domains live in an arena owned by the pass invocation and are
// referred to by index, so union-find entries are first-class and
// shareable without cyclic ownership. Two expressions that must hold
// the same value end up on union-find-merged entries.
type (
	domainRef int

	domainNode struct {
		// parent in the union-find forest; the node is its own
		// representative when parent refers back to itself.
		parent domainRef
		// scope payload of a first-order representative.
		scope scope.Scope
		// children of a higher-order domain: parameter domains
		// followed by the result domain. Nil for first-order.
		children []domainRef
	}

	domains struct {
		cfg   *scope.Config
		arena []*domainNode

		// exprDomains is keyed by expression node identity.
		exprDomains map[ir.Expr]domainRef
		// calleeDomains memoizes the callee domain of every call so
		// analysis, defaulting and capture see the same entry.
		calleeDomains map[*ir.Call]domainRef
	}
)

func newDomains(cfg *scope.Config) *domains {
	return &domains{
		cfg:           cfg,
		exprDomains:   make(map[ir.Expr]domainRef),
		calleeDomains: make(map[*ir.Call]domainRef),
	}
}

func (ds *domains) allocFirstOrder(s scope.Scope) domainRef {
	d := domainRef(len(ds.arena))
	ds.arena = append(ds.arena, &domainNode{parent: d, scope: s})
	return d
}

func (ds *domains) allocHigherOrder(children []domainRef) domainRef {
	d := domainRef(len(ds.arena))
	ds.arena = append(ds.arena, &domainNode{parent: d, children: children})
	return d
}

// free returns a fresh fully unconstrained first-order domain.
func (ds *domains) free() domainRef {
	return ds.allocFirstOrder(scope.Scope{})
}

// find returns the canonical representative, compressing paths.
func (ds *domains) find(d domainRef) domainRef {
	node := ds.arena[d]
	if node.parent == d {
		return d
	}
	root := ds.find(node.parent)
	node.parent = root
	return root
}

func (ds *domains) node(d domainRef) *domainNode {
	return ds.arena[ds.find(d)]
}

func (ds *domains) isHigherOrder(d domainRef) bool {
	return ds.node(d).children != nil
}

// arity returns the number of parameters of a higher-order domain.
func (ds *domains) arity(d domainRef) int {
	return len(ds.node(d).children) - 1
}

// funcParam returns the domain of the i-th parameter.
func (ds *domains) funcParam(d domainRef, i int) domainRef {
	return ds.find(ds.node(d).children[i])
}

// funcResult returns the domain of the result.
func (ds *domains) funcResult(d domainRef) domainRef {
	children := ds.node(d).children
	return ds.find(children[len(children)-1])
}

// fromType builds a fresh fully free domain shaped by a type: function
// types yield higher-order domains of matching arity, recursively;
// everything else, tuples and references included, is first-order.
func (ds *domains) fromType(t ir.Type) domainRef {
	funcType, ok := t.(*ir.FuncType)
	if !ok {
		return ds.free()
	}
	children := make([]domainRef, 0, len(funcType.Params)+1)
	for _, param := range funcType.Params {
		children = append(children, ds.fromType(param))
	}
	children = append(children, ds.fromType(funcType.Result))
	return ds.allocHigherOrder(children)
}

// forScope returns a first-order domain holding the canonicalized scope.
func (ds *domains) forScope(s scope.Scope) domainRef {
	return ds.allocFirstOrder(ds.cfg.Canonical(s))
}

// forScopeType builds a domain shaped by a type whose every leaf holds
// the canonicalized scope.
func (ds *domains) forScopeType(t ir.Type, s scope.Scope) domainRef {
	funcType, ok := t.(*ir.FuncType)
	if !ok {
		return ds.allocFirstOrder(ds.cfg.Canonical(s))
	}
	children := make([]domainRef, 0, len(funcType.Params)+1)
	for _, param := range funcType.Params {
		children = append(children, ds.forScopeType(param, s))
	}
	children = append(children, ds.forScopeType(funcType.Result, s))
	return ds.allocHigherOrder(children)
}

// domainFor returns the domain of an expression, creating it shaped by
// the expression's type on first query.
func (ds *domains) domainFor(e ir.Expr) domainRef {
	if d, ok := ds.exprDomains[e]; ok {
		return ds.find(d)
	}
	switch e.(type) {
	case *ir.Op, *ir.Cons:
		// Operators and constructors are scope polymorphic: their
		// references never carry a domain of their own.
		return ds.free()
	}
	d := ds.fromType(e.Type())
	ds.exprDomains[e] = d
	return d
}

// lookup returns the domain of an already analyzed expression.
func (ds *domains) lookup(e ir.Expr) (domainRef, bool) {
	d, ok := ds.exprDomains[e]
	if !ok {
		return 0, false
	}
	return ds.find(d), true
}

// domainForCallee returns the higher-order domain of a call's callee.
// Operators and constructors get a fresh domain per call site (scope
// polymorphism); dialect operators get purpose-built domains; any
// other callee shares its regular expression domain across call sites.
func (ds *domains) domainForCallee(call *ir.Call) (domainRef, error) {
	if d, ok := ds.calleeDomains[call]; ok {
		return ds.find(d), nil
	}
	var d domainRef
	switch callee := call.Callee.(type) {
	case *ir.Op:
		var err error
		d, err = ds.domainForOpCallee(call, callee)
		if err != nil {
			return 0, err
		}
	case *ir.Cons:
		d = ds.primCalleeDomain(call)
	default:
		d = ds.domainFor(call.Callee)
		if !ds.isHigherOrder(d) {
			return 0, fmterr.Errorf(call, "callee %s is not of function type", call.Callee.String())
		}
	}
	ds.calleeDomains[call] = d
	return d, nil
}

// primCalleeDomain builds the domain of a call to a scope polymorphic
// primitive: a fresh domain per call site in which all arguments and
// the result share a single free first-order entry, since a primitive
// computes where its result is stored. A function-typed argument
// collapses onto that entry during unification.
func (ds *domains) primCalleeDomain(call *ir.Call) domainRef {
	shared := ds.free()
	children := make([]domainRef, len(call.Args)+1)
	for i := range children {
		children[i] = shared
	}
	return ds.allocHigherOrder(children)
}

func (ds *domains) host() domainRef {
	return ds.forScope(ds.cfg.HostScope)
}

func (ds *domains) checkOpArity(call *ir.Call, op *ir.Op, want int) error {
	if len(call.Args) == want {
		return nil
	}
	return fmterr.Wrapf(ErrArityMismatch, call, "operator %s expects %d arguments, got %d", op.Name, want, len(call.Args))
}

// domainForOpCallee builds the callee domain of a primitive operator
// call. A closed set of dialect operators receives purpose-built
// domains; all others keep their arguments and result on one still
// free scope.
func (ds *domains) domainForOpCallee(call *ir.Call, op *ir.Op) (domainRef, error) {
	switch op.Name {
	case ir.OnDeviceOp:
		props := ir.GetOnDeviceProps(call)
		if props.Body == nil {
			return 0, fmterr.Errorf(call, "malformed %s call", op.Name)
		}
		arg := ds.forScopeType(props.Body.Type(), props.Scope)
		result := arg
		if !props.IsFixed {
			// The annotation constrains its argument only; the
			// context of the call stays free.
			result = ds.fromType(call.Typ)
		}
		return ds.allocHigherOrder([]domainRef{arg, result}), nil
	case ir.DeviceCopyOp:
		props := ir.GetDeviceCopyProps(call)
		if props.Body == nil {
			return 0, fmterr.Errorf(call, "malformed %s call", op.Name)
		}
		arg := ds.forScopeType(props.Body.Type(), props.Src)
		result := ds.forScopeType(call.Typ, props.Dst)
		return ds.allocHigherOrder([]domainRef{arg, result}), nil
	case ir.ShapeOfOp:
		// shape_of(data): the tensor may live anywhere, its shape
		// is only ever held on the host.
		if err := ds.checkOpArity(call, op, 1); err != nil {
			return 0, err
		}
		return ds.allocHigherOrder([]domainRef{ds.fromType(call.Args[0].Type()), ds.host()}), nil
	case ir.ShapeFuncOp:
		// shape_func(fn, inputs, outputs): the operator whose shape
		// function runs is free, shapes live on the host.
		if err := ds.checkOpArity(call, op, 3); err != nil {
			return 0, err
		}
		return ds.allocHigherOrder([]domainRef{
			ds.fromType(call.Args[0].Type()),
			ds.host(),
			ds.host(),
			ds.host(),
		}), nil
	case ir.ReshapeTensorOp:
		// reshape_tensor(data, shape): result and data share their
		// scope, the shape lives on the host.
		if err := ds.checkOpArity(call, op, 2); err != nil {
			return 0, err
		}
		data := ds.fromType(call.Args[0].Type())
		return ds.allocHigherOrder([]domainRef{data, ds.host(), data}), nil
	case ir.AllocStorageOp:
		// alloc_storage(size, alignment): allocation metadata lives
		// on the host, the storage itself is free.
		if err := ds.checkOpArity(call, op, 2); err != nil {
			return 0, err
		}
		return ds.allocHigherOrder([]domainRef{ds.host(), ds.host(), ds.free()}), nil
	case ir.AllocTensorOp:
		// alloc_tensor(storage, offset, shape): the tensor lives in
		// its storage, offset and shape on the host.
		if err := ds.checkOpArity(call, op, 3); err != nil {
			return 0, err
		}
		storage := ds.free()
		return ds.allocHigherOrder([]domainRef{storage, ds.host(), ds.host(), storage}), nil
	}
	return ds.primCalleeDomain(call), nil
}

// unify merges two domains into one equivalence class.
// First-order domains merge their scopes; higher-order domains of
// equal arity unify pointwise; a first-order and a higher-order domain
// unify by collapsing the higher-order one.
func (ds *domains) unify(lhs, rhs domainRef) (domainRef, error) {
	lhs, rhs = ds.find(lhs), ds.find(rhs)
	if lhs == rhs {
		return lhs, nil
	}
	lNode, rNode := ds.arena[lhs], ds.arena[rhs]
	lHigher, rHigher := lNode.children != nil, rNode.children != nil
	switch {
	case !lHigher && !rHigher:
		joined, err := scope.Join(lNode.scope, rNode.scope)
		if err != nil {
			return 0, errors.Wrapf(ErrUnificationConflict, "%s", err.Error())
		}
		rNode.scope = ds.cfg.Canonical(joined)
		lNode.parent = rhs
		return rhs, nil
	case lHigher && rHigher:
		if len(lNode.children) != len(rNode.children) {
			return 0, errors.Wrapf(ErrArityMismatch, "%d vs %d parameters", len(lNode.children)-1, len(rNode.children)-1)
		}
		lChildren := lNode.children
		rChildren := rNode.children
		lNode.parent = rhs
		for i := range lChildren {
			if _, err := ds.unify(lChildren[i], rChildren[i]); err != nil {
				return 0, err
			}
		}
		return rhs, nil
	case lHigher:
		return ds.collapse(rhs, lhs)
	default:
		return ds.collapse(lhs, rhs)
	}
}

// collapse unifies every leaf of a higher-order domain with a
// first-order domain: a function value flowing through a first-order
// context pins all its parameter and result scopes to that context.
func (ds *domains) collapse(firstOrder, higher domainRef) (domainRef, error) {
	for _, child := range ds.arena[ds.find(higher)].children {
		child = ds.find(child)
		var err error
		if ds.arena[child].children != nil {
			_, err = ds.collapse(firstOrder, child)
		} else {
			_, err = ds.unify(firstOrder, child)
		}
		if err != nil {
			return 0, err
		}
	}
	return ds.find(firstOrder), nil
}

// unifyExact unifies two domains; any mismatch is fatal.
func (ds *domains) unifyExact(lhs, rhs domainRef) error {
	_, err := ds.unify(lhs, rhs)
	return err
}

// unifyCollapsed unifies two domains, collapsing whichever side is
// higher-order if their orders differ.
func (ds *domains) unifyCollapsed(lhs, rhs domainRef) error {
	_, err := ds.unify(lhs, rhs)
	return err
}

// unifyExprExact unifies the domains of two expressions that must hold
// the same value.
func (ds *domains) unifyExprExact(lhs, rhs ir.Expr) error {
	if err := ds.unifyExact(ds.domainFor(lhs), ds.domainFor(rhs)); err != nil {
		return fmterr.Wrapf(err, lhs, "cannot unify scopes with %s", rhs.String())
	}
	return nil
}

// unifyExprCollapsed unifies the first-order domain of an expression
// with a possibly higher-order domain.
func (ds *domains) unifyExprCollapsed(e ir.Expr, d domainRef) error {
	if err := ds.unifyCollapsed(ds.domainFor(e), d); err != nil {
		return fmterr.Wrapf(err, e, "cannot unify scope with %s", ds.str(d))
	}
	return nil
}

// resultScope follows result edges until first-order and returns that
// scope, which may still be unconstrained.
func (ds *domains) resultScope(d domainRef) scope.Scope {
	for {
		node := ds.node(d)
		if node.children == nil {
			return node.scope
		}
		d = node.children[len(node.children)-1]
	}
}

// isFullyConstrained returns true iff no leaf of the domain is fully
// unconstrained.
func (ds *domains) isFullyConstrained(d domainRef) bool {
	node := ds.node(d)
	if node.children == nil {
		return !node.scope.IsFullyUnconstrained()
	}
	for _, child := range node.children {
		if !ds.isFullyConstrained(child) {
			return false
		}
	}
	return true
}

// setDefault fixes every still unconstrained leaf of the domain to the
// given scope.
func (ds *domains) setDefault(d domainRef, s scope.Scope) {
	node := ds.node(d)
	if node.children == nil {
		if node.scope.IsFullyUnconstrained() {
			node.scope = ds.cfg.Canonical(s)
		}
		return
	}
	for _, child := range node.children {
		ds.setDefault(child, s)
	}
}

// setResultDefaultThenParams fixes the result subtree to the default
// scope first, then falls still-free parameters back to the scope just
// determined for the result, recursing into higher-order parameters
// the same way.
func (ds *domains) setResultDefaultThenParams(d domainRef, s scope.Scope) {
	node := ds.node(d)
	if node.children == nil {
		ds.setDefault(d, s)
		return
	}
	ds.setResultDefaultThenParams(node.children[len(node.children)-1], s)
	resultScope := ds.resultScope(d)
	for _, param := range node.children[:len(node.children)-1] {
		ds.setResultDefaultThenParams(param, resultScope)
	}
}

// str renders a domain for diagnostics.
func (ds *domains) str(d domainRef) string {
	node := ds.node(d)
	if node.children == nil {
		return node.scope.String()
	}
	params := make([]string, len(node.children)-1)
	for i := range params {
		params[i] = ds.str(node.children[i])
	}
	return "fn(" + strings.Join(params, ", ") + "):" + ds.str(node.children[len(node.children)-1])
}

// String dumps every expression domain, ordered by the printed
// expression, for debugging.
func (ds *domains) String() string {
	exprs := maps.Keys(ds.exprDomains)
	slices.SortFunc(exprs, func(a, b ir.Expr) int {
		return strings.Compare(a.String(), b.String())
	})
	b := strings.Builder{}
	for _, e := range exprs {
		b.WriteString(e.String())
		b.WriteString(": ")
		b.WriteString(ds.str(ds.exprDomains[e]))
		b.WriteString("\n")
	}
	return b.String()
}
