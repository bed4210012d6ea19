// A small demo that multiplies a 4x4 matrix with a vector on the default
// 4x4 array and prints the result.
package main

import (
	"fmt"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gemmsim/config"
	"github.com/sarchlab/gemmsim/gemm"
)

func main() {
	monitor := monitoring.NewMonitor()

	engine := sim.NewSerialEngine()

	platform := config.MakePlatformBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithArrayShape(4, 4).
		WithMonitor(monitor).
		Build("Platform")

	monitor.StartServer()

	a := gemm.NewMatrix(4, 4)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a.Set(r, c, int16(r*4+c+1))
		}
	}

	x := gemm.NewMatrix(4, 1)
	for i := 0; i < 4; i++ {
		x.Set(i, 0, int16(i+1))
	}

	if err := platform.Multiplier.Multiply(a, x); err != nil {
		panic(err)
	}

	if err := engine.Run(); err != nil {
		panic(err)
	}

	fmt.Println(gemm.RenderMatrix("A", a))
	fmt.Println(gemm.RenderMatrix("x", x))
	fmt.Println(gemm.RenderMatrix("A*x", platform.Multiplier.Result()))

	fmt.Printf("bursts=%d macs=%d\n",
		platform.Array.Bursts(), platform.Array.TotalMACs())

	atexit.Exit(0)
}
