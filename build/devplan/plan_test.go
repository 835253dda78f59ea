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

package devplan_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/relgo-org/relgo/build/devplan"
	"github.com/relgo-org/relgo/build/ir"
	"github.com/relgo-org/relgo/build/ir/irhelper"
	"github.com/relgo-org/relgo/build/scope"
)

var (
	cpu = scope.NewVirtual(scope.CPU, 0)
	gpu = scope.NewVirtual(scope.GPU, 0)
)

// testConfig defaults primitives to the CPU, which also hosts shapes.
func testConfig() *scope.Config {
	return scope.NewConfig(cpu, cpu, false)
}

func plan(t *testing.T, mod *ir.Module, cfg *scope.Config) *ir.Module {
	t.Helper()
	out, err := devplan.PlanScopes(mod, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := devplan.Verify(out, cfg); err != nil {
		t.Fatalf("planned module violates the output contract: %v\nmodule:\n%s", err, out.String())
	}
	return out
}

func mainFunc(t *testing.T, mod *ir.Module) *ir.Function {
	t.Helper()
	main, err := mod.Func("main")
	if err != nil {
		t.Fatal(err)
	}
	return main
}

func checkAttrs(t *testing.T, fn *ir.Function, params []scope.Scope, result scope.Scope) {
	t.Helper()
	if !fn.Attrs.ResultScope.Equal(result) {
		t.Errorf("got result scope %s but want %s", fn.Attrs.ResultScope, result)
	}
	if len(fn.Attrs.ParamScopes) != len(params) {
		t.Fatalf("got %d parameter scopes but want %d", len(fn.Attrs.ParamScopes), len(params))
	}
	for i, want := range params {
		if !fn.Attrs.ParamScopes[i].Equal(want) {
			t.Errorf("got parameter %d scope %s but want %s", i, fn.Attrs.ParamScopes[i], want)
		}
	}
}

func rerun(t *testing.T, out *ir.Module, cfg *scope.Config) {
	t.Helper()
	again, err := devplan.PlanScopes(out, cfg)
	if err != nil {
		t.Fatalf("re-running the pass on its own output: %v", err)
	}
	if diff := cmp.Diff(out.String(), again.String()); diff != "" {
		t.Errorf("the pass is not idempotent:\n%s", diff)
	}
}

// An annotation directly inside a primitive call pins the primitive:
// its other argument and its result follow the annotated scope.
func TestSinglePrimitivePinned(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x, y},
		irhelper.Add(x, ir.OnDevice(y, gpu, false)))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	checkAttrs(t, main, []scope.Scope{gpu, gpu}, gpu)
	if s := out.String(); strings.Contains(s, ir.OnDeviceOp) {
		t.Errorf("annotations remain in the output:\n%s", s)
	}
	rerun(t, out, cfg)
}

// An annotated let binding introduces a scope boundary: the consumer
// stays on the default scope and receives the value through a copy.
func TestHeterogeneousLetWithCopy(t *testing.T) {
	a := irhelper.Var("a", irhelper.F32())
	fn := irhelper.Fn(nil,
		irhelper.Let(a,
			ir.OnDevice(irhelper.CallOp("heavy", irhelper.F32()), gpu, false),
			irhelper.CallOp("light", irhelper.F32(), a)))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	checkAttrs(t, main, []scope.Scope{}, cpu)

	expected := ir.NewFunc(nil,
		irhelper.Let(a,
			ir.OnDevice(irhelper.CallOp("heavy", irhelper.F32()), gpu, true),
			irhelper.CallOp("light", irhelper.F32(),
				ir.DeviceCopy(ir.OnDevice(a, gpu, true), gpu, cpu))),
		irhelper.F32())
	expected.Attrs.ParamScopes = []scope.Scope{}
	expected.Attrs.ResultScope = cpu
	if diff := cmp.Diff(expected.String(), main.String()); diff != "" {
		t.Errorf("unexpected planned function:\n%s", diff)
	}
	rerun(t, out, cfg)
}

// Scope constraints flow through functions passed as first-class
// values: pinning inside f constrains g's higher-order parameter and
// through it the argument b.
func TestFunctionPassedToFunction(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	f := irhelper.Fn([]*ir.Var{x, y}, irhelper.Add(x, ir.OnDevice(y, gpu, false)))
	fv := irhelper.Var("f", f.Typ)
	h := irhelper.Var("h", f.Typ)
	z := irhelper.Var("z", irhelper.F32())
	g := irhelper.Fn([]*ir.Var{h, z}, irhelper.Call(h, z, z))
	gv := irhelper.Var("g", g.Typ)
	b := irhelper.Var("b", irhelper.F32())
	main := irhelper.Fn([]*ir.Var{b},
		irhelper.Let(fv, f,
			irhelper.Let(gv, g,
				irhelper.Call(gv, fv, b))))
	cfg := testConfig()
	out := plan(t, irhelper.Module(main), cfg)

	planned := mainFunc(t, out)
	checkAttrs(t, planned, []scope.Scope{gpu}, gpu)
	letF := planned.Body.(*ir.Let)
	checkAttrs(t, letF.Value.(*ir.Function), []scope.Scope{gpu, gpu}, gpu)
	letG := letF.Body.(*ir.Let)
	checkAttrs(t, letG.Value.(*ir.Function), []scope.Scope{gpu, gpu}, gpu)
	rerun(t, out, cfg)
}

// Shapes live on the host even when the tensor they describe does not.
// The function's pre-existing scope attributes are respected.
func TestShapeOfStaysOnHost(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32(2, 2))
	fn := irhelper.Fn([]*ir.Var{x},
		irhelper.CallOp(ir.ShapeOfOp, irhelper.F32(2), x))
	fn.Attrs.ParamScopes = []scope.Scope{gpu}
	fn.Attrs.ResultScope = cpu
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	checkAttrs(t, main, []scope.Scope{gpu}, cpu)
	// The tensor stays on its device; only its shape is on the host,
	// so the argument is annotated rather than copied.
	call := main.Body.(*ir.Call)
	props := ir.GetOnDeviceProps(call.Args[0])
	if props.Body == nil || !props.Scope.Equal(gpu) {
		t.Errorf("shape_of argument is not annotated on its own scope: %s", main.Body.String())
	}
	if s := main.Body.String(); strings.Contains(s, ir.DeviceCopyOp) {
		t.Errorf("shape_of argument was copied to the host: %s", s)
	}
	rerun(t, out, cfg)
}

// Two fixed annotations demanding different scopes for one expression
// are a fatal conflict naming both scopes.
func TestUnificationConflict(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x},
		ir.OnDevice(ir.OnDevice(x, gpu, true), cpu, true))
	_, err := devplan.PlanScopes(irhelper.Module(fn), testConfig())
	if !errors.Is(err, devplan.ErrUnificationConflict) {
		t.Fatalf("got error %v but want a unification conflict", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "gpu") || !strings.Contains(msg, "cpu") {
		t.Errorf("conflict error does not name both scopes: %v", err)
	}
}

// An annotation argument pins a primitive call, and the scope shared by
// primitive calls carries it through a let binding to every still-free
// argument, so nothing is left to default.
func TestAnnotationPinsSharedScope(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	z := irhelper.Var("z", irhelper.F32())
	a := irhelper.Var("a", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x, y, z},
		irhelper.Let(a, irhelper.Add(x, y),
			irhelper.CallOp("multiply", irhelper.F32(), a, ir.OnDevice(z, gpu, false))))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	// The annotation pins multiply, z and through the shared scope
	// also a, x and y; the function result follows the body.
	checkAttrs(t, main, []scope.Scope{gpu, gpu, gpu}, gpu)
	rerun(t, out, cfg)
}

// A free function falls back entirely to the default scope.
func TestDefaultingPlain(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x, y}, irhelper.Add(x, y))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	checkAttrs(t, mainFunc(t, out), []scope.Scope{cpu, cpu}, cpu)
	rerun(t, out, cfg)
}

// A function value stored in a tuple is collapsed: all its parameter
// and result scopes follow the tuple's scope.
func TestTupleCollapsesFunction(t *testing.T) {
	p := irhelper.Var("p", irhelper.F32())
	fa := irhelper.Var("fa", irhelper.F32())
	fb := irhelper.Var("fb", irhelper.F32())
	f := irhelper.Fn([]*ir.Var{fa, fb}, irhelper.Add(fa, fb))
	tup := irhelper.Var("t", irhelper.Tuple(f, p).Typ)
	fn := irhelper.Fn([]*ir.Var{p},
		irhelper.Let(tup, ir.OnDevice(irhelper.Tuple(f, p), gpu, false),
			irhelper.Proj(tup, 1)))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	checkAttrs(t, main, []scope.Scope{gpu}, gpu)
	inner := main.Body.(*ir.Let).Value.(*ir.Tuple).Fields[0].(*ir.Function)
	checkAttrs(t, inner, []scope.Scope{gpu, gpu}, gpu)
	rerun(t, out, cfg)
}

// Reference cells share their scope with the values they hold; an
// annotated value entering a cell on another scope goes through a copy.
func TestReferences(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	refType := &ir.RefType{Elem: irhelper.F32()}
	r := irhelper.Var("r", refType)
	u := irhelper.Var("u", ir.UnitType())
	fn := irhelper.Fn([]*ir.Var{x, y},
		irhelper.Let(r, &ir.RefCreate{Value: ir.OnDevice(x, gpu, false), Typ: refType},
			irhelper.Let(u, &ir.RefWrite{Ref: r, Value: y, Typ: ir.UnitType()},
				&ir.RefRead{Ref: r, Typ: irhelper.F32()})))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	// The annotation marks a boundary: x stays on the GPU, while the
	// cell, the written value and the read all default to the CPU.
	checkAttrs(t, main, []scope.Scope{gpu, cpu}, cpu)
	if s := main.Body.String(); !strings.Contains(s, ir.DeviceCopyOp) {
		t.Errorf("no copy moves the annotated value into the cell: %s", s)
	}
	rerun(t, out, cfg)
}

// Pattern variables live with the matched value; clause bodies live
// with the overall match.
func TestMatch(t *testing.T) {
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	pa := irhelper.Var("pa", irhelper.F32())
	pb := irhelper.Var("pb", irhelper.F32())
	match := &ir.Match{
		Data: ir.OnDevice(irhelper.Tuple(x, y), gpu, true),
		Clauses: []*ir.Clause{{
			Pat:  &ir.PatternTuple{Sub: []ir.Pattern{&ir.PatternVar{Bound: pa}, &ir.PatternVar{Bound: pb}}},
			Body: irhelper.Add(pa, pb),
		}},
		Complete: true,
		Typ:      irhelper.F32(),
	}
	fn := irhelper.Fn([]*ir.Var{x, y}, match)
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	// The matched tuple is pinned; the pattern variables and the
	// clause body follow it.
	checkAttrs(t, mainFunc(t, out), []scope.Scope{gpu, gpu}, gpu)
	rerun(t, out, cfg)
}

// Primitive functions are not descended into and keep their bodies and
// (absence of) attributes untouched.
func TestPrimitiveFunctionSkipped(t *testing.T) {
	pa := irhelper.Var("pa", irhelper.F32())
	pb := irhelper.Var("pb", irhelper.F32())
	prim := irhelper.PrimFn([]*ir.Var{pa, pb}, irhelper.Add(pa, pb))
	x := irhelper.Var("x", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x},
		irhelper.Call(prim, x, ir.OnDevice(x, gpu, false)))
	cfg := testConfig()
	out := plan(t, irhelper.Module(fn), cfg)
	main := mainFunc(t, out)
	call := main.Body.(*ir.Call)
	planned, ok := call.Callee.(*ir.Function)
	if !ok {
		t.Fatalf("callee is not a function: %s", call.String())
	}
	if planned != prim {
		t.Errorf("primitive function was rewritten")
	}
	if planned.Attrs.ParamScopes != nil || !planned.Attrs.ResultScope.IsFullyUnconstrained() {
		t.Errorf("primitive function received scope attributes")
	}
	rerun(t, out, cfg)
}

// A module with several functions plans each of them and keeps the
// module order.
func TestModuleOrderKept(t *testing.T) {
	mod := ir.NewModule()
	x := irhelper.Var("x", irhelper.F32())
	mod.AddFunc("second", irhelper.Fn([]*ir.Var{x}, irhelper.Add(x, x)))
	y := irhelper.Var("y", irhelper.F32())
	mod.AddFunc("first", irhelper.Fn([]*ir.Var{y}, irhelper.Add(y, ir.OnDevice(y, gpu, false))))
	cfg := testConfig()
	out := plan(t, mod, cfg)
	var names []string
	for gv := range out.Funcs() {
		names = append(names, gv.Name)
	}
	if !cmp.Equal(names, []string{"second", "first"}) {
		t.Errorf("got function order %v but want [second first]", names)
	}
	second, err := out.Func("second")
	if err != nil {
		t.Fatal(err)
	}
	checkAttrs(t, second, []scope.Scope{cpu}, cpu)
	first, err := out.Func("first")
	if err != nil {
		t.Fatal(err)
	}
	checkAttrs(t, first, []scope.Scope{gpu}, gpu)
	rerun(t, out, cfg)
}

// Verify rejects modules that break the output contract.
func TestVerifyRejects(t *testing.T) {
	cfg := testConfig()
	x := irhelper.Var("x", irhelper.F32())

	noAttrs := irhelper.Fn([]*ir.Var{x}, irhelper.Add(x, x))
	if err := devplan.Verify(irhelper.Module(noAttrs), cfg); err == nil {
		t.Errorf("a function without scope attributes passed verification")
	}

	redundant := irhelper.Fn([]*ir.Var{x}, ir.OnDevice(irhelper.Add(x, x), cpu, true))
	redundant.Attrs.ParamScopes = []scope.Scope{cpu}
	redundant.Attrs.ResultScope = cpu
	if err := devplan.Verify(irhelper.Module(redundant), cfg); err == nil {
		t.Errorf("a redundant annotation passed verification")
	}

	inPrim := irhelper.PrimFn([]*ir.Var{x}, ir.OnDevice(irhelper.Add(x, x), gpu, true))
	if err := devplan.Verify(irhelper.Module(inPrim), cfg); err == nil {
		t.Errorf("an annotation inside a primitive function passed verification")
	}
}
