package pe

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gemmsim/gemm"
)

var _ = Describe("PE", func() {
	var (
		p        *PE
		actOut   []int16
		psumOut  []int32
		emission []int32
	)

	build := func(b Builder) *PE {
		actOut = nil
		psumOut = nil
		emission = nil

		pe := b.Build("PE[0][0]")
		pe.BindActivationOutput(
			NewDelayLine[int16]("ActOut", 1, func(v int16) {
				actOut = append(actOut, v)
			}))
		pe.BindPartialSumOutput(
			NewDelayLine[int32]("PsumOut", 1, func(v int32) {
				psumOut = append(psumOut, v)
			}))
		pe.BindResultConsumer(func(v int32) {
			emission = append(emission, v)
		})

		return pe
	}

	// Delivers everything currently in flight on the output lines.
	drain := func() {
		p.actOut.Tick()
		p.psumOut.Tick()
	}

	Context("with the dedicated weight path", func() {
		BeforeEach(func() {
			p = build(Builder{}.
				WithPortMode(gemm.SeparateWeightPort).
				WithDataflow(PsumFlow))
		})

		It("should station a weight", func() {
			p.SetWeight(3)
			Expect(p.Weight()).To(Equal(int16(3)))
		})

		It("should keep the weight across many activations", func() {
			p.SetWeight(5)

			inputs := []int16{1, 2, 3, 4}
			for _, a := range inputs {
				p.ReceivePartialSum(0)
				p.ReceiveActivation(a)
				drain()
			}

			Expect(p.Weight()).To(Equal(int16(5)))
			Expect(psumOut).To(Equal([]int32{5, 10, 15, 20}))
			Expect(p.MACCount()).To(Equal(uint64(4)))
		})

		It("should forward activations east unchanged", func() {
			p.SetWeight(9)

			p.ReceiveActivation(7)
			drain()

			Expect(actOut).To(Equal([]int16{7}))
		})

		It("should fire in either arrival order", func() {
			p.SetWeight(2)

			p.ReceiveActivation(3)
			Expect(p.MACCount()).To(Equal(uint64(0)))
			p.ReceivePartialSum(10)
			Expect(p.MACCount()).To(Equal(uint64(1)))
			drain()
			Expect(psumOut).To(Equal([]int32{16}))

			p.ReceivePartialSum(1)
			Expect(p.MACCount()).To(Equal(uint64(1)))
			p.ReceiveActivation(1)
			Expect(p.MACCount()).To(Equal(uint64(2)))
			drain()
			Expect(psumOut).To(Equal([]int32{16, 3}))
		})

		It("should wrap around on overflow", func() {
			p.SetWeight(1)

			p.ReceivePartialSum(math.MaxInt32)
			p.ReceiveActivation(1)
			drain()

			Expect(psumOut).To(Equal([]int32{math.MinInt32}))
		})

		It("should clear burst state but not the weight on reset", func() {
			p.SetWeight(4)
			p.ReceivePartialSum(2)
			p.ReceiveActivation(3)

			p.ControlSignal(gemm.CtrlReset)

			Expect(p.Weight()).To(Equal(int16(4)))
			Expect(p.Accumulator()).To(Equal(int32(0)))
			Expect(p.Busy()).To(BeFalse())
		})

		It("should emit the accumulator on the emit signal", func() {
			p.SetWeight(4)
			p.ReceivePartialSum(2)
			p.ReceiveActivation(3)
			drain()

			p.ControlSignal(gemm.CtrlEmitResult)

			Expect(emission).To(Equal([]int32{14}))
		})

		It("should ignore unrecognized control signals", func() {
			p.SetWeight(4)
			p.ReceivePartialSum(2)
			p.ReceiveActivation(3)
			drain()

			p.ControlSignal(99)

			Expect(p.Weight()).To(Equal(int16(4)))
			Expect(p.Accumulator()).To(Equal(int32(14)))
			Expect(emission).To(BeEmpty())
		})
	})

	Context("with a multi-cycle multiplier", func() {
		BeforeEach(func() {
			p = build(Builder{}.
				WithPortMode(gemm.SeparateWeightPort).
				WithDataflow(PsumFlow).
				WithComputeLatency(2))
		})

		It("should hold the partial sum until the latency elapses", func() {
			p.SetWeight(3)
			p.ReceivePartialSum(1)
			p.ReceiveActivation(2)

			Expect(p.Busy()).To(BeTrue())

			// The tick in the firing cycle does not count against the
			// latency.
			p.Tick()
			drain()
			Expect(p.Busy()).To(BeTrue())
			Expect(psumOut).To(BeEmpty())

			p.Tick()
			drain()
			Expect(p.Busy()).To(BeTrue())
			Expect(psumOut).To(BeEmpty())

			p.Tick()
			drain()
			Expect(p.Busy()).To(BeFalse())
			Expect(psumOut).To(Equal([]int32{7}))
		})

		It("should span the full latency no matter when the MAC fires", func() {
			p.SetWeight(1)
			p.ReceivePartialSum(0)
			p.ReceiveActivation(1)

			ticksWhileBusy := 0
			for p.Busy() {
				p.Tick()
				ticksWhileBusy++
			}
			drain()

			// One tick in the firing cycle plus the two countdown ticks.
			Expect(ticksWhileBusy).To(Equal(3))
			Expect(psumOut).To(Equal([]int32{1}))
		})

		It("should drop activations while busy", func() {
			p.SetWeight(3)
			p.ReceivePartialSum(0)
			p.ReceiveActivation(2)
			drain()

			p.ReceiveActivation(5)
			drain()

			// The second activation is gone: not latched, not forwarded.
			Expect(actOut).To(Equal([]int16{2}))
			Expect(p.MACCount()).To(Equal(uint64(1)))

			p.Tick()
			p.Tick()
			p.Tick()
			drain()
			Expect(psumOut).To(Equal([]int32{6}))
		})
	})

	Context("with the shared weight and partial-sum path", func() {
		BeforeEach(func() {
			p = build(Builder{}.
				WithPortMode(gemm.SharedWeightPartialSumPort).
				WithDataflow(LocalAccum))
		})

		It("should station weights while loading mode is on", func() {
			p.SetWeightLoading(true)
			p.ReceivePartialSum(6)
			p.SetWeightLoading(false)

			Expect(p.Weight()).To(Equal(int16(6)))
			Expect(p.Accumulator()).To(Equal(int32(0)))
		})

		It("should accumulate locally and emit on demand", func() {
			p.SetWeightLoading(true)
			p.ReceivePartialSum(3)
			p.SetWeightLoading(false)

			for _, a := range []int16{1, 2, 3} {
				p.ReceiveActivation(a)
				drain()
			}

			// Nothing flows south in local accumulation.
			Expect(psumOut).To(BeEmpty())
			Expect(p.Accumulator()).To(Equal(int32(18)))

			p.ControlSignal(gemm.CtrlEmitResult)
			Expect(emission).To(Equal([]int32{18}))
		})

		It("should treat partial sums as data once loading mode is off", func() {
			p.SetWeightLoading(true)
			p.ReceivePartialSum(2)
			p.SetWeightLoading(false)

			p.ReceivePartialSum(100)
			Expect(p.Weight()).To(Equal(int16(2)))
			Expect(p.Accumulator()).To(Equal(int32(100)))
		})
	})
})
