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

// Package fmterr provides helpers to format and accumulate errors
// raised by compiler passes against IR nodes.
package fmterr

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Errorf returns a formatted compiler error naming the node it concerns.
func Errorf(node fmt.Stringer, format string, a ...any) error {
	return errors.Errorf("%s: %s", node.String(), fmt.Sprintf(format, a...))
}

// Wrapf annotates an error with the node it concerns.
func Wrapf(err error, node fmt.Stringer, format string, a ...any) error {
	return errors.Wrapf(err, "%s: %s", node.String(), fmt.Sprintf(format, a...))
}

// Internal marks an error as internal, potentially adding additional information.
func Internal(err error) error {
	return fmt.Errorf("internal compiler error. This is a bug. Please report it. Error:\n%+v", err)
}

// Internalf returns a formatted internal error for a node.
func Internalf(node fmt.Stringer, format string, a ...any) error {
	return Internal(Errorf(node, format, a...))
}

// Errors accumulates errors raised while processing a module.
type Errors struct {
	errs error
}

// Append an error to the set. Nil errors are ignored.
func (errs *Errors) Append(err error) {
	errs.errs = multierr.Append(errs.errs, err)
}

// Appendf formats an error against a node and appends it to the set.
func (errs *Errors) Appendf(node fmt.Stringer, format string, a ...any) {
	errs.Append(Errorf(node, format, a...))
}

// Empty returns true if no error has been accumulated.
func (errs *Errors) Empty() bool {
	return errs.errs == nil
}

// Err returns the accumulated errors as a single error, or nil.
func (errs *Errors) Err() error {
	return errs.errs
}

// Errors returns the list of all collected errors.
func (errs *Errors) Errors() []error {
	return multierr.Errors(errs.errs)
}
