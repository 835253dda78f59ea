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
	"sync"

	"github.com/relgo-org/relgo/build/scope"
)

// Names of the dialect operators recognized by scope planning.
const (
	// OnDeviceOp annotates its argument with a storage scope. The
	// call has no operational meaning of its own.
	OnDeviceOp = "on_device"
	// DeviceCopyOp copies its argument from a source to a
	// destination scope.
	DeviceCopyOp = "device_copy"
	// ShapeOfOp computes the shape of a tensor at runtime.
	ShapeOfOp = "shape_of"
	// ShapeFuncOp invokes the shape function of an operator.
	ShapeFuncOp = "shape_func"
	// ReshapeTensorOp reshapes a tensor to a runtime shape.
	ReshapeTensorOp = "reshape_tensor"
	// AllocStorageOp allocates a backing buffer.
	AllocStorageOp = "alloc_storage"
	// AllocTensorOp carves a tensor out of a backing buffer.
	AllocTensorOp = "alloc_tensor"
)

var (
	opsMu sync.Mutex
	ops   = map[string]*Op{}
)

// OpRef returns the interned reference to a primitive operator.
// All references to one operator share the same node.
func OpRef(name string) *Op {
	opsMu.Lock()
	defer opsMu.Unlock()
	op, ok := ops[name]
	if !ok {
		op = &Op{Name: name}
		ops[name] = op
	}
	return op
}

// ----------------------------------------------------------------------------
// Call attributes.
type (
	// CallAttrs are attributes attached to a call node.
	CallAttrs interface {
		callAttrs()
	}

	// OnDeviceAttrs are the attributes of an OnDeviceOp call. The
	// annotation constrains the argument's scope; if IsFixed it also
	// constrains the call's result.
	OnDeviceAttrs struct {
		Scope   scope.Scope
		IsFixed bool
	}

	// DeviceCopyAttrs are the attributes of a DeviceCopyOp call.
	DeviceCopyAttrs struct {
		Src scope.Scope
		Dst scope.Scope
	}
)

func (OnDeviceAttrs) callAttrs()   {}
func (DeviceCopyAttrs) callAttrs() {}

// OnDevice returns a call annotating body with a storage scope.
func OnDevice(body Expr, s scope.Scope, isFixed bool) *Call {
	return &Call{
		Callee: OpRef(OnDeviceOp),
		Args:   []Expr{body},
		Attrs:  OnDeviceAttrs{Scope: s, IsFixed: isFixed},
		Typ:    body.Type(),
	}
}

// DeviceCopy returns a call copying body from the src to the dst scope.
func DeviceCopy(body Expr, src, dst scope.Scope) *Call {
	return &Call{
		Callee: OpRef(DeviceCopyOp),
		Args:   []Expr{body},
		Attrs:  DeviceCopyAttrs{Src: src, Dst: dst},
		Typ:    body.Type(),
	}
}

// OnDeviceProps are the unpacked attributes of an OnDeviceOp call.
// Body is nil if the expression is not such a call.
type OnDeviceProps struct {
	Body    Expr
	Scope   scope.Scope
	IsFixed bool
}

// GetOnDeviceProps unpacks expr as an OnDeviceOp call.
func GetOnDeviceProps(expr Expr) OnDeviceProps {
	call, ok := expr.(*Call)
	if !ok || len(call.Args) != 1 {
		return OnDeviceProps{}
	}
	op, ok := call.Callee.(*Op)
	if !ok || op.Name != OnDeviceOp {
		return OnDeviceProps{}
	}
	attrs, ok := call.Attrs.(OnDeviceAttrs)
	if !ok {
		return OnDeviceProps{}
	}
	return OnDeviceProps{Body: call.Args[0], Scope: attrs.Scope, IsFixed: attrs.IsFixed}
}

// DeviceCopyProps are the unpacked attributes of a DeviceCopyOp call.
// Body is nil if the expression is not such a call.
type DeviceCopyProps struct {
	Body Expr
	Src  scope.Scope
	Dst  scope.Scope
}

// GetDeviceCopyProps unpacks expr as a DeviceCopyOp call.
func GetDeviceCopyProps(expr Expr) DeviceCopyProps {
	call, ok := expr.(*Call)
	if !ok || len(call.Args) != 1 {
		return DeviceCopyProps{}
	}
	op, ok := call.Callee.(*Op)
	if !ok || op.Name != DeviceCopyOp {
		return DeviceCopyProps{}
	}
	attrs, ok := call.Attrs.(DeviceCopyAttrs)
	if !ok {
		return DeviceCopyProps{}
	}
	return DeviceCopyProps{Body: call.Args[0], Src: attrs.Src, Dst: attrs.Dst}
}
