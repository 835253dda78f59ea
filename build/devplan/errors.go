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

import "github.com/pkg/errors"

// Planning errors. All are fatal: no partial module is emitted and the
// caller surfaces them to the user.
var (
	// ErrUnificationConflict reports two constraints demanding
	// incompatible scopes for one expression.
	ErrUnificationConflict = errors.New("scopes are incompatible")

	// ErrArityMismatch reports a unification of higher-order domains
	// of unequal arities. The input module is malformed.
	ErrArityMismatch = errors.New("higher-order scope domains have different arities")

	// ErrUnresolvedDefault reports a scope left unconstrained with no
	// configured default to fall back to.
	ErrUnresolvedDefault = errors.New("no default scope configured for unconstrained expression")
)
