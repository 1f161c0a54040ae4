/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	if invalidShape.Ok() {
		t.Error("Invalid().Ok() should be false")
	}

	shape0 := Make(dtypes.Float64)
	if !shape0.Ok() {
		t.Error("shape0.Ok() should be true")
	}
	if !shape0.IsScalar() {
		t.Error("shape0.IsScalar() should be true")
	}
	if shape0.Rank() != 0 {
		t.Errorf("shape0.Rank() = %d, want 0", shape0.Rank())
	}
	if len(shape0.Dimensions) != 0 {
		t.Errorf("len(shape0.Dimensions) = %d, want 0", len(shape0.Dimensions))
	}
	if shape0.Size() != 1 {
		t.Errorf("shape0.Size() = %d, want 1", shape0.Size())
	}
	if got := shape0.String(); got != "(Float64)" {
		t.Errorf("shape0.String() = %q, want %q", got, "(Float64)")
	}

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	if !shape1.Ok() {
		t.Error("shape1.Ok() should be true")
	}
	if shape1.IsScalar() {
		t.Error("shape1.IsScalar() should be false")
	}
	if shape1.Rank() != 3 {
		t.Errorf("shape1.Rank() = %d, want 3", shape1.Rank())
	}
	if len(shape1.Dimensions) != 3 {
		t.Errorf("len(shape1.Dimensions) = %d, want 3", len(shape1.Dimensions))
	}
	if shape1.Size() != 4*3*2 {
		t.Errorf("shape1.Size() = %d, want %d", shape1.Size(), 4*3*2)
	}
	if got := shape1.String(); got != "(Float32)[4 3 2]" {
		t.Errorf("shape1.String() = %q, want %q", got, "(Float32)[4 3 2]")
	}

	scalar := Scalar[float32]()
	if !scalar.IsScalar() {
		t.Error("Scalar[float32]().IsScalar() should be true")
	}
	if scalar.DType != dtypes.Float32 {
		t.Errorf("Scalar[float32]().DType = %s, want Float32", scalar.DType)
	}

	panics(t, func() { _ = Make(dtypes.Float32, 2, 0) })
	panics(t, func() { _ = Make(dtypes.Float32, -1) })
}

func panics(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic, but code did not panic")
		}
	}()
	f()
}

func TestDim(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3, 2)
	if d := shape.Dim(0); d != 4 {
		t.Errorf("shape.Dim(0) = %d, want 4", d)
	}
	if d := shape.Dim(1); d != 3 {
		t.Errorf("shape.Dim(1) = %d, want 3", d)
	}
	if d := shape.Dim(2); d != 2 {
		t.Errorf("shape.Dim(2) = %d, want 2", d)
	}
	if d := shape.Dim(-3); d != 4 {
		t.Errorf("shape.Dim(-3) = %d, want 4", d)
	}
	if d := shape.Dim(-2); d != 3 {
		t.Errorf("shape.Dim(-2) = %d, want 3", d)
	}
	if d := shape.Dim(-1); d != 2 {
		t.Errorf("shape.Dim(-1) = %d, want 2", d)
	}
	panics(t, func() { _ = shape.Dim(3) })
	panics(t, func() { _ = shape.Dim(-4) })
}

func TestEqualAndClone(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3)
	if !shape.Equal(Make(dtypes.Float32, 4, 3)) {
		t.Error("shapes with the same dtype and dimensions should be equal")
	}
	if shape.Equal(Make(dtypes.Float64, 4, 3)) {
		t.Error("shapes with different dtypes should not be equal")
	}
	if shape.Equal(Make(dtypes.Float32, 4)) {
		t.Error("shapes with different ranks should not be equal")
	}
	if shape.Equal(Make(dtypes.Float32, 4, 2)) {
		t.Error("shapes with different dimensions should not be equal")
	}
	if !shape.EqualDimensions(Make(dtypes.Float64, 4, 3)) {
		t.Error("EqualDimensions should ignore dtypes")
	}

	clone := shape.Clone()
	if !shape.Equal(clone) {
		t.Error("clone should equal the original")
	}
	clone.Dimensions[0] = 7
	if shape.Dimensions[0] != 4 {
		t.Error("mutating a clone should not affect the original")
	}
}
