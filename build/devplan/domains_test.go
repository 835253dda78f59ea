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
	"strings"
	"testing"

	"github.com/gx-org/backend/dtype"
	"github.com/pkg/errors"
	"github.com/relgo-org/relgo/build/ir"
	"github.com/relgo-org/relgo/build/ir/irhelper"
	"github.com/relgo-org/relgo/build/scope"
)

var (
	cpu0 = scope.NewVirtual(scope.CPU, 0)
	gpu0 = scope.NewVirtual(scope.GPU, 0)
	gpu1 = scope.NewVirtual(scope.GPU, 1)
)

func testDomains() *domains {
	return newDomains(scope.NewConfig(cpu0, cpu0, true))
}

func TestUnifyFirstOrder(t *testing.T) {
	ds := testDomains()
	a := ds.free()
	b := ds.allocFirstOrder(gpu0)
	if err := ds.unifyExact(a, b); err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(a); !got.Equal(gpu0) {
		t.Errorf("got scope %s but want %s", got, gpu0)
	}
	if ds.find(a) != ds.find(b) {
		t.Errorf("unified domains have different representatives")
	}
}

func TestUnifyConflict(t *testing.T) {
	ds := testDomains()
	a := ds.allocFirstOrder(cpu0)
	b := ds.allocFirstOrder(gpu0)
	err := ds.unifyExact(a, b)
	if !errors.Is(err, ErrUnificationConflict) {
		t.Fatalf("got error %v but want a unification conflict", err)
	}
}

func TestUnifyHigherOrder(t *testing.T) {
	ds := testDomains()
	a := ds.allocHigherOrder([]domainRef{ds.allocFirstOrder(gpu0), ds.free()})
	b := ds.allocHigherOrder([]domainRef{ds.free(), ds.allocFirstOrder(cpu0)})
	if err := ds.unifyExact(a, b); err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(a); !got.Equal(cpu0) {
		t.Errorf("got result scope %s but want %s", got, cpu0)
	}
	if got := ds.resultScope(ds.funcParam(b, 0)); !got.Equal(gpu0) {
		t.Errorf("got parameter scope %s but want %s", got, gpu0)
	}
}

func TestUnifyArityMismatch(t *testing.T) {
	ds := testDomains()
	a := ds.allocHigherOrder([]domainRef{ds.free(), ds.free()})
	b := ds.allocHigherOrder([]domainRef{ds.free(), ds.free(), ds.free()})
	err := ds.unifyExact(a, b)
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("got error %v but want an arity mismatch", err)
	}
}

func TestCollapse(t *testing.T) {
	ds := testDomains()
	higher := ds.allocHigherOrder([]domainRef{
		ds.free(),
		ds.allocHigherOrder([]domainRef{ds.free(), ds.free()}),
	})
	firstOrder := ds.allocFirstOrder(gpu0)
	if err := ds.unifyCollapsed(firstOrder, higher); err != nil {
		t.Fatal(err)
	}
	if !ds.isFullyConstrained(higher) {
		t.Fatalf("collapsed domain %s is not fully constrained", ds.str(higher))
	}
	if got := ds.resultScope(ds.funcParam(higher, 0)); !got.Equal(gpu0) {
		t.Errorf("got leaf scope %s but want %s", got, gpu0)
	}
	if got := ds.resultScope(ds.funcResult(ds.funcParam(higher, 1))); !got.Equal(gpu0) {
		t.Errorf("got nested leaf scope %s but want %s", got, gpu0)
	}
}

func TestCollapseConflict(t *testing.T) {
	ds := testDomains()
	higher := ds.allocHigherOrder([]domainRef{ds.allocFirstOrder(gpu1), ds.free()})
	firstOrder := ds.allocFirstOrder(gpu0)
	if err := ds.unifyCollapsed(firstOrder, higher); !errors.Is(err, ErrUnificationConflict) {
		t.Fatalf("got error %v but want a unification conflict", err)
	}
}

func TestSetResultDefaultThenParams(t *testing.T) {
	ds := testDomains()
	d := ds.allocHigherOrder([]domainRef{ds.free(), ds.allocFirstOrder(gpu0), ds.free()})
	ds.setResultDefaultThenParams(d, cpu0)
	// The free result is fixed to the default, then the free
	// parameter falls back to the result scope.
	if got := ds.resultScope(d); !got.Equal(cpu0) {
		t.Errorf("got result scope %s but want %s", got, cpu0)
	}
	if got := ds.resultScope(ds.funcParam(d, 0)); !got.Equal(cpu0) {
		t.Errorf("got parameter 0 scope %s but want %s", got, cpu0)
	}
	if got := ds.resultScope(ds.funcParam(d, 1)); !got.Equal(gpu0) {
		t.Errorf("got parameter 1 scope %s but want %s", got, gpu0)
	}
}

func TestSetResultDefaultThenParamsConstrainedResult(t *testing.T) {
	ds := testDomains()
	d := ds.allocHigherOrder([]domainRef{ds.free(), ds.allocFirstOrder(gpu0)})
	ds.setResultDefaultThenParams(d, cpu0)
	// The result is already fixed: the free parameter falls back to
	// the result scope, not to the default.
	if got := ds.resultScope(ds.funcParam(d, 0)); !got.Equal(gpu0) {
		t.Errorf("got parameter scope %s but want %s", got, gpu0)
	}
}

func TestDomainForShapedByType(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32())
	if ds.isHigherOrder(ds.domainFor(x)) {
		t.Errorf("tensor-typed expression has a higher-order domain")
	}
	fn := irhelper.Fn([]*ir.Var{x}, irhelper.Add(x, x))
	fnDomain := ds.domainFor(fn)
	if !ds.isHigherOrder(fnDomain) {
		t.Fatalf("function-typed expression has a first-order domain")
	}
	if got := ds.arity(fnDomain); got != 1 {
		t.Errorf("got arity %d but want 1", got)
	}
	if ds.domainFor(fn) != ds.find(fnDomain) {
		t.Errorf("domainFor is not idempotent")
	}
}

func TestPrimCalleeSharesScopes(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32())
	y := irhelper.Var("y", irhelper.F32())
	call := irhelper.Add(x, y)
	d, err := ds.domainForCallee(call)
	if err != nil {
		t.Fatal(err)
	}
	// Pinning one argument of a primitive pins its other argument
	// and its result.
	if err := ds.unifyExact(ds.funcParam(d, 1), ds.allocFirstOrder(gpu0)); err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(ds.funcParam(d, 0)); !got.Equal(gpu0) {
		t.Errorf("got first parameter scope %s but want %s", got, gpu0)
	}
	if got := ds.resultScope(d); !got.Equal(gpu0) {
		t.Errorf("got result scope %s but want %s", got, gpu0)
	}
	// A second call site of the same operator is unconstrained.
	other, err := ds.domainForCallee(irhelper.Add(x, y))
	if err != nil {
		t.Fatal(err)
	}
	if ds.isFullyConstrained(other) {
		t.Errorf("a fresh call site of a primitive is already constrained")
	}
}

func TestDomainsString(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32())
	fn := irhelper.Fn([]*ir.Var{x}, irhelper.Add(x, x))
	if err := ds.unifyExprExact(fn, fn); err != nil {
		t.Fatal(err)
	}
	ds.setDefault(ds.domainFor(x), gpu0)
	dump := ds.String()
	if !strings.Contains(dump, "%x: gpu:0") {
		t.Errorf("domain dump does not list the variable domain:\n%s", dump)
	}
	if !strings.Contains(dump, "fn(") {
		t.Errorf("domain dump does not render the function domain:\n%s", dump)
	}
}

func TestOnDeviceCalleeDomain(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32())
	free, err := ds.domainForCallee(ir.OnDevice(x, gpu0, false))
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(ds.funcParam(free, 0)); !got.Equal(gpu0) {
		t.Errorf("got argument scope %s but want %s", got, gpu0)
	}
	if got := ds.resultScope(free); !got.IsFullyUnconstrained() {
		t.Errorf("result of an unfixed annotation is constrained to %s", got)
	}
	fixed, err := ds.domainForCallee(ir.OnDevice(x, gpu0, true))
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(fixed); !got.Equal(gpu0) {
		t.Errorf("got result scope %s but want %s for a fixed annotation", got, gpu0)
	}
}

func TestDeviceCopyCalleeDomain(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32())
	d, err := ds.domainForCallee(ir.DeviceCopy(x, gpu0, cpu0))
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(ds.funcParam(d, 0)); !got.Equal(gpu0) {
		t.Errorf("got source scope %s but want %s", got, gpu0)
	}
	if got := ds.resultScope(d); !got.Equal(cpu0) {
		t.Errorf("got destination scope %s but want %s", got, cpu0)
	}
}

func TestShapeOfCalleeDomain(t *testing.T) {
	ds := testDomains()
	x := irhelper.Var("x", irhelper.F32(2, 2))
	call := irhelper.CallOp(ir.ShapeOfOp, ir.TensorOf(dtype.Int64, 2), x)
	d, err := ds.domainForCallee(call)
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.resultScope(ds.funcParam(d, 0)); !got.IsFullyUnconstrained() {
		t.Errorf("shape_of data argument is constrained to %s", got)
	}
	if got := ds.resultScope(d); !got.Equal(cpu0) {
		t.Errorf("got shape scope %s but want the host scope %s", got, cpu0)
	}
}
