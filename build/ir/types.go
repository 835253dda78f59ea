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

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// ----------------------------------------------------------------------------
// Types definition.
type (
	// Type of a value.
	Type interface {
		Node

		// Equal returns true if other is structurally the same type.
		Equal(Type) bool

		// String representation of the type.
		String() string
	}

	// TensorType is the type of a tensor of some element type and
	// static shape. A rank zero shape is a scalar.
	TensorType struct {
		Shape *shape.Shape
	}

	// TupleType is the type of a tuple value.
	TupleType struct {
		Fields []Type
	}

	// FuncType is the type of a function value.
	FuncType struct {
		Params []Type
		Result Type
	}

	// RefType is the type of a mutable reference cell.
	RefType struct {
		Elem Type
	}

	// DataType is a reference to an algebraic data type definition.
	DataType struct {
		Decl *DataDecl
	}
)

var (
	_ Type = (*TensorType)(nil)
	_ Type = (*TupleType)(nil)
	_ Type = (*FuncType)(nil)
	_ Type = (*RefType)(nil)
	_ Type = (*DataType)(nil)
)

// TensorOf returns the type of a tensor given its element type and axis lengths.
func TensorOf(dt dtype.DataType, axes ...int) *TensorType {
	return &TensorType{Shape: &shape.Shape{DType: dt, AxisLengths: axes}}
}

// ScalarOf returns the type of a rank zero tensor.
func ScalarOf(dt dtype.DataType) *TensorType {
	return TensorOf(dt)
}

// BoolType returns the type of a boolean scalar.
func BoolType() *TensorType {
	return ScalarOf(dtype.Bool)
}

func (*TensorType) node() {}

// Equal returns true if other is a tensor type with the same element
// type and axis lengths.
func (t *TensorType) Equal(other Type) bool {
	o, ok := other.(*TensorType)
	if !ok {
		return false
	}
	if t.Shape.DType != o.Shape.DType {
		return false
	}
	if len(t.Shape.AxisLengths) != len(o.Shape.AxisLengths) {
		return false
	}
	for i, axis := range t.Shape.AxisLengths {
		if axis != o.Shape.AxisLengths[i] {
			return false
		}
	}
	return true
}

// String representation of the type.
func (t *TensorType) String() string {
	if len(t.Shape.AxisLengths) == 0 {
		return t.Shape.DType.String()
	}
	axes := make([]string, len(t.Shape.AxisLengths))
	for i, axis := range t.Shape.AxisLengths {
		axes[i] = fmt.Sprint(axis)
	}
	return fmt.Sprintf("[%s]%s", strings.Join(axes, "x"), t.Shape.DType.String())
}

func (*TupleType) node() {}

// Equal returns true if other is a tuple type with equal field types.
func (t *TupleType) Equal(other Type) bool {
	o, ok := other.(*TupleType)
	if !ok || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i, field := range t.Fields {
		if !field.Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// String representation of the type.
func (t *TupleType) String() string {
	fields := make([]string, len(t.Fields))
	for i, field := range t.Fields {
		fields[i] = field.String()
	}
	return "(" + strings.Join(fields, ", ") + ")"
}

func (*FuncType) node() {}

// Equal returns true if other is a function type with equal parameter
// and result types.
func (t *FuncType) Equal(other Type) bool {
	o, ok := other.(*FuncType)
	if !ok || len(t.Params) != len(o.Params) {
		return false
	}
	for i, param := range t.Params {
		if !param.Equal(o.Params[i]) {
			return false
		}
	}
	return t.Result.Equal(o.Result)
}

// Arity returns the number of parameters of the function type.
func (t *FuncType) Arity() int {
	return len(t.Params)
}

// String representation of the type.
func (t *FuncType) String() string {
	params := make([]string, len(t.Params))
	for i, param := range t.Params {
		params[i] = param.String()
	}
	return fmt.Sprintf("fn(%s) -> %s", strings.Join(params, ", "), t.Result.String())
}

func (*RefType) node() {}

// Equal returns true if other is a reference type with an equal element type.
func (t *RefType) Equal(other Type) bool {
	o, ok := other.(*RefType)
	return ok && t.Elem.Equal(o.Elem)
}

// String representation of the type.
func (t *RefType) String() string {
	return "ref(" + t.Elem.String() + ")"
}

func (*DataType) node() {}

// Equal returns true if other refers to the same data type definition.
func (t *DataType) Equal(other Type) bool {
	o, ok := other.(*DataType)
	return ok && t.Decl == o.Decl
}

// String representation of the type.
func (t *DataType) String() string {
	return t.Decl.Name
}

// UnitType returns the type of an expression evaluated for its effect only.
func UnitType() *TupleType {
	return &TupleType{}
}
