// A demo that tiles a 6x5 by 5x7 product onto a 2x2 array, checking the
// simulated result against a plain triple loop.
package main

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gemmsim/config"
	"github.com/sarchlab/gemmsim/gemm"
)

func randomMatrix(rng *rand.Rand, rows, cols int) *gemm.Matrix {
	m := gemm.NewMatrix(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, int16(rng.Intn(21)-10))
		}
	}

	return m
}

func reference(a, b *gemm.Matrix) *gemm.Matrix {
	result := gemm.NewMatrix(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			var sum int32
			for k := 0; k < a.Cols; k++ {
				sum = gemm.MAC(sum, a.At(i, k), b.At(k, j))
			}
			result.Set(i, j, int16(sum))
		}
	}

	return result
}

func main() {
	rng := rand.New(rand.NewSource(1))

	engine := sim.NewSerialEngine()

	platform := config.MakePlatformBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithArrayShape(2, 2).
		Build("Platform")

	a := randomMatrix(rng, 6, 5)
	b := randomMatrix(rng, 5, 7)

	if err := platform.Multiplier.Multiply(a, b); err != nil {
		panic(err)
	}

	if err := engine.Run(); err != nil {
		panic(err)
	}

	result := platform.Multiplier.Result()
	want := reference(a, b)

	mismatches := 0
	for r := 0; r < want.Rows; r++ {
		for c := 0; c < want.Cols; c++ {
			if result.At(r, c) != want.At(r, c) {
				mismatches++
			}
		}
	}

	fmt.Println(gemm.RenderMatrix("A*B", result))
	fmt.Printf("blocks=%d bursts=%d macs=%d mismatches=%d\n",
		platform.Multiplier.Blocks(),
		platform.Array.Bursts(),
		platform.Array.TotalMACs(),
		mismatches)

	if mismatches > 0 {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
