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

package ordered_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/relgo-org/relgo/base/ordered"
)

func TestMapOrder(t *testing.T) {
	m := ordered.NewMap[string, int]()
	m.Set("c", 2)
	m.Set("a", 0)
	m.Set("b", 1)
	m.Set("a", 3)
	var keys []string
	var vals []int
	for k, v := range m.Pairs() {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	wantKeys := []string{"c", "a", "b"}
	wantVals := []int{2, 3, 1}
	if !cmp.Equal(keys, wantKeys) {
		t.Errorf("got keys %v but want %v", keys, wantKeys)
	}
	if !cmp.Equal(vals, wantVals) {
		t.Errorf("got values %v but want %v", vals, wantVals)
	}
	if m.Len() != 3 {
		t.Errorf("got length %d but want 3", m.Len())
	}
}

func TestMapGet(t *testing.T) {
	m := ordered.NewMap[string, int]()
	m.Set("a", 42)
	if v, ok := m.Get("a"); !ok || v != 42 {
		t.Errorf("got %d,%v but want 42,true", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Errorf("got a value for a missing key")
	}
}
