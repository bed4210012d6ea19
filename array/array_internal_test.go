package array

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gemmsim/gemm"
	"github.com/sarchlab/gemmsim/pe"
)

func matrixOf(rows [][]int16) *gemm.Matrix {
	m := gemm.NewMatrix(len(rows), len(rows[0]))
	for r, row := range rows {
		for c, v := range row {
			m.Set(r, c, v)
		}
	}

	return m
}

func vectorOf(values ...int16) *gemm.Vector {
	v := gemm.NewVector(len(values))
	for i, x := range values {
		v.Set(i, x)
	}

	return v
}

// runBurst feeds one vector and ticks the array until the burst finishes.
func runBurst(a *Array, x *gemm.Vector) []int32 {
	var result []int32
	a.BindResultConsumer(func(values []int32) {
		result = values
	})

	Expect(a.FeedVector(x)).To(Succeed())

	for i := 0; a.Busy(); i++ {
		Expect(i).To(BeNumerically("<", 100000))
		a.Tick()
	}

	return result
}

var _ = Describe("Array", func() {
	Describe("construction", func() {
		It("should reject invalid shapes", func() {
			Expect(func() {
				MakeBuilder().WithRows(0).Build("A")
			}).To(Panic())
			Expect(func() {
				MakeBuilder().WithCols(-1).Build("A")
			}).To(Panic())
		})

		It("should reject invalid latencies", func() {
			Expect(func() {
				MakeBuilder().WithDelayLatency(0).Build("A")
			}).To(Panic())
			Expect(func() {
				MakeBuilder().WithComputeLatency(-1).Build("A")
			}).To(Panic())
		})

		It("should reject unsupported operand widths", func() {
			Expect(func() {
				MakeBuilder().WithActWidth(8).Build("A")
			}).To(Panic())
			Expect(func() {
				MakeBuilder().WithWeightWidth(32).Build("A")
			}).To(Panic())
		})
	})

	Describe("operand checking", func() {
		var a *Array

		BeforeEach(func() {
			a = MakeBuilder().WithRows(2).WithCols(3).Build("Array")
		})

		It("should reject weights that do not fit", func() {
			err := a.LoadWeights(gemm.NewMatrix(3, 2))
			Expect(err).To(MatchError(gemm.ErrShapeMismatch))

			err = a.LoadWeights(gemm.NewMatrix(2, 2))
			Expect(err).To(MatchError(gemm.ErrShapeMismatch))
		})

		It("should reject vectors that do not fit", func() {
			Expect(a.LoadWeights(gemm.NewMatrix(2, 3))).To(Succeed())

			err := a.FeedVector(gemm.NewVector(3))
			Expect(err).To(MatchError(gemm.ErrShapeMismatch))
		})

		It("should reject a second vector mid-burst", func() {
			Expect(a.LoadWeights(matrixOf([][]int16{
				{1, 2, 3},
				{4, 5, 6},
			}))).To(Succeed())
			Expect(a.FeedVector(vectorOf(1, 1))).To(Succeed())

			err := a.FeedVector(vectorOf(2, 2))
			Expect(err).To(MatchError(gemm.ErrBusy))

			// The rejection must not disturb the burst in flight.
			var result []int32
			a.BindResultConsumer(func(values []int32) { result = values })
			for a.Busy() {
				a.Tick()
			}
			Expect(result).To(Equal([]int32{5, 7, 9}))
		})

		It("should reject weight loads mid-burst", func() {
			Expect(a.LoadWeights(gemm.NewMatrix(2, 3))).To(Succeed())
			Expect(a.FeedVector(vectorOf(1, 1))).To(Succeed())

			err := a.LoadWeights(gemm.NewMatrix(2, 3))
			Expect(err).To(MatchError(gemm.ErrBusy))
		})
	})

	Describe("matrix-vector products", func() {
		It("should compute column sums of the stationed matrix", func() {
			a := MakeBuilder().WithRows(2).WithCols(3).Build("Array")
			Expect(a.LoadWeights(matrixOf([][]int16{
				{1, 2, 3},
				{4, 5, 6},
			}))).To(Succeed())

			result := runBurst(a, vectorOf(1, 2))

			// out[c] = w[0][c]*x[0] + w[1][c]*x[1]
			Expect(result).To(Equal([]int32{9, 12, 15}))
		})

		It("should compute W*x when the transpose is stationed", func() {
			w := matrixOf([][]int16{
				{1, 2, 3, 4},
				{5, 6, 7, 8},
				{9, 10, 11, 12},
				{13, 14, 15, 16},
			})

			a := MakeBuilder().Build("Array")
			Expect(a.LoadWeights(w.Transposed())).To(Succeed())

			result := runBurst(a, vectorOf(1, 2, 3, 4))

			Expect(result).To(Equal([]int32{30, 70, 110, 150}))
		})

		It("should pass vectors through an identity matrix", func() {
			a := MakeBuilder().WithRows(3).WithCols(3).Build("Array")
			Expect(a.LoadWeights(matrixOf([][]int16{
				{1, 0, 0},
				{0, 1, 0},
				{0, 0, 1},
			}))).To(Succeed())

			result := runBurst(a, vectorOf(7, -8, 9))

			Expect(result).To(Equal([]int32{7, -8, 9}))
		})

		It("should handle negative operands", func() {
			a := MakeBuilder().WithRows(2).WithCols(2).Build("Array")
			Expect(a.LoadWeights(matrixOf([][]int16{
				{-1, 2},
				{3, -4},
			}))).To(Succeed())

			result := runBurst(a, vectorOf(-5, 6))

			Expect(result).To(Equal([]int32{23, -34}))
		})

		It("should wrap around instead of saturating", func() {
			a := MakeBuilder().WithRows(3).WithCols(1).Build("Array")
			Expect(a.LoadWeights(matrixOf([][]int16{
				{math.MaxInt16},
				{math.MaxInt16},
				{math.MaxInt16},
			}))).To(Succeed())

			x := vectorOf(math.MaxInt16, math.MaxInt16, math.MaxInt16)
			result := runBurst(a, x)

			// 3 * 32767^2 exceeds MaxInt32 and must wrap, not saturate.
			expected := int32(0)
			for i := 0; i < 3; i++ {
				expected += int32(math.MaxInt16) * int32(math.MaxInt16)
			}
			Expect(expected).To(BeNumerically("<", 0))
			Expect(result).To(Equal([]int32{expected}))
		})

		It("should survive back-to-back bursts", func() {
			a := MakeBuilder().WithRows(2).WithCols(2).Build("Array")
			Expect(a.LoadWeights(matrixOf([][]int16{
				{1, 2},
				{3, 4},
			}))).To(Succeed())

			Expect(runBurst(a, vectorOf(1, 0))).To(Equal([]int32{1, 2}))
			Expect(runBurst(a, vectorOf(0, 1))).To(Equal([]int32{3, 4}))
			Expect(runBurst(a, vectorOf(1, 1))).To(Equal([]int32{4, 6}))

			Expect(a.Bursts()).To(Equal(uint64(3)))
			Expect(a.TotalMACs()).To(Equal(uint64(3 * 2 * 2)))
		})
	})

	Describe("cycle accounting", func() {
		// A burst over an RxC grid drains after (C-1)*d + R*(d+l)
		// processed cycles, one Tick per cycle plus one to notice.
		expectBurstLength := func(rows, cols, delay, latency int) {
			a := MakeBuilder().
				WithRows(rows).
				WithCols(cols).
				WithDelayLatency(delay).
				WithComputeLatency(latency).
				Build("Array")

			w := gemm.NewMatrix(rows, cols)
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					w.Set(r, c, 1)
				}
			}
			Expect(a.LoadWeights(w)).To(Succeed())

			x := gemm.NewVector(rows)
			for i := 0; i < rows; i++ {
				x.Set(i, 1)
			}
			Expect(a.FeedVector(x)).To(Succeed())

			total := (cols-1)*delay + rows*(delay+latency)
			for i := 0; i < total; i++ {
				a.Tick()
				Expect(a.Busy()).To(BeTrue(),
					"burst ended early at tick %d of %d", i+1, total)
			}

			a.Tick()
			Expect(a.Busy()).To(BeFalse(),
				"burst still running after %d ticks", total+1)
		}

		It("should finish on time with unit latencies", func() {
			expectBurstLength(2, 2, 1, 0)
			expectBurstLength(4, 4, 1, 0)
			expectBurstLength(2, 3, 1, 0)
		})

		It("should finish on time with slow multipliers", func() {
			expectBurstLength(2, 2, 1, 1)
			expectBurstLength(3, 2, 1, 2)
		})

		It("should finish on time with deep delay lines", func() {
			expectBurstLength(2, 2, 2, 0)
			expectBurstLength(3, 3, 2, 1)
		})

		It("should deliver the column sum at the full compute latency", func() {
			a := MakeBuilder().
				WithRows(3).
				WithCols(1).
				WithDelayLatency(1).
				WithComputeLatency(2).
				Build("Array")

			Expect(a.LoadWeights(matrixOf([][]int16{
				{1}, {1}, {1},
			}))).To(Succeed())

			var result []int32
			a.BindResultConsumer(func(values []int32) { result = values })
			Expect(a.FeedVector(vectorOf(1, 2, 3))).To(Succeed())

			// The column sum leaves the bottom at cycle rows*(d+l). A MAC
			// fired by a delay-line delivery must still take the full
			// latency, so nothing reaches the collector before the final
			// tick of the burst.
			total := 3 * (1 + 2)
			for i := 0; i < total; i++ {
				a.Tick()
				Expect(a.results[0]).To(Equal(int32(0)),
					"sum reached the collector early, after tick %d", i+1)
			}

			a.Tick()
			Expect(a.Busy()).To(BeFalse())
			Expect(result).To(Equal([]int32{6}))
		})
	})

	Describe("with the shared weight path and local accumulation", func() {
		It("should match the flowing-psum result", func() {
			build := func(mode gemm.PortMode, flow pe.DataflowMode) *Array {
				a := MakeBuilder().
					WithRows(3).
					WithCols(2).
					WithPortMode(mode).
					WithDataflow(flow).
					Build("Array")
				Expect(a.LoadWeights(matrixOf([][]int16{
					{2, -1},
					{0, 3},
					{5, 4},
				}))).To(Succeed())
				return a
			}

			flowing := build(gemm.SeparateWeightPort, pe.PsumFlow)
			local := build(gemm.SharedWeightPartialSumPort, pe.LocalAccum)

			x := vectorOf(1, 2, 3)
			Expect(runBurst(local, x)).To(Equal(runBurst(flowing, x)))
		})

		It("should station weights through the partial-sum path", func() {
			a := MakeBuilder().
				WithRows(2).
				WithCols(2).
				WithPortMode(gemm.SharedWeightPartialSumPort).
				WithDataflow(pe.LocalAccum).
				Build("Array")

			w := matrixOf([][]int16{
				{1, 2},
				{3, 4},
			})
			Expect(a.LoadWeights(w)).To(Succeed())

			for r := 0; r < 2; r++ {
				for c := 0; c < 2; c++ {
					Expect(a.PE(r, c).Weight()).To(Equal(w.At(r, c)))
				}
			}
		})
	})
})
