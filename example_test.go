package spmd_test

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/rules"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/gomlx/spmd/types/shapes"
	"github.com/janpfeifer/must"
)

// Infer the output layout of a matmul whose input is sharded over the
// data-parallel mesh dimension and whose weights are sharded over the
// model-parallel one.
func Example() {
	registry := spmd.NewRegistry()
	must.M(rules.RegisterBuiltin(registry))

	mesh := must.M1(distributed.NewProcessMesh("mesh", []int{4, 2}, []string{"dp", "mp"}))
	x := must.M1(distributed.NewDistTensorSpec(
		shapes.Make(dtypes.Float32, 64, 128),
		must.M1(distributed.NewTensorDistAttr(mesh, []int{0, -1}))))
	w := must.M1(distributed.NewDistTensorSpec(
		shapes.Make(dtypes.Float32, 128, 512),
		must.M1(distributed.NewTensorDistAttr(mesh, []int{-1, 1}))))

	outputs := must.M1(registry.Infer(spmd.Forward, "matmul",
		[]distributed.DistTensorSpec{x, w},
		spmd.Attributes{"trans_x": false, "trans_y": false}))
	fmt.Println(outputs[0])
	// Output: DistTensorSpec(shape=(Float32)[64 512], dimsMapping=[0 1])
}
