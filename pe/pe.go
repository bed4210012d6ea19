package pe

import (
	"log/slog"

	"github.com/sarchlab/gemmsim/gemm"
)

// DataflowMode selects what a PE does with the products it computes.
type DataflowMode int

const (
	// PsumFlow forwards each partial sum to the southern neighbor.
	PsumFlow DataflowMode = iota

	// LocalAccum keeps products in the local accumulator until a control
	// signal reads them out.
	LocalAccum
)

// Name returns the name of the dataflow mode.
func (m DataflowMode) Name() string {
	switch m {
	case PsumFlow:
		return "PsumFlow"
	case LocalAccum:
		return "LocalAccum"
	default:
		panic("invalid dataflow mode")
	}
}

// A PE is one weight-stationary processing element. It holds one weight,
// multiplies it with activations flowing east, and either forwards partial
// sums south or accumulates locally. PEs do not talk to the event engine;
// the owning array ticks them.
type PE struct {
	name   string
	logger *slog.Logger

	portMode       gemm.PortMode
	dataflow       DataflowMode
	computeLatency int

	weight        int16
	weightLoading bool

	activation int16
	actValid   bool
	psumIn     int32
	psumValid  bool

	busy        bool
	fired       bool
	countdown   int
	pendingPsum int32

	accumulator int32
	macCount    uint64

	actOut         *DelayLine[int16]
	psumOut        *DelayLine[int32]
	resultConsumer func(int32)
}

// BindActivationOutput attaches the delay line that carries activations to
// the eastern neighbor.
func (p *PE) BindActivationOutput(l *DelayLine[int16]) {
	p.actOut = l
}

// BindPartialSumOutput attaches the delay line that carries partial sums to
// the southern neighbor.
func (p *PE) BindPartialSumOutput(l *DelayLine[int32]) {
	p.psumOut = l
}

// BindResultConsumer attaches the sink that receives the accumulator when
// an emit control signal arrives.
func (p *PE) BindResultConsumer(consumer func(int32)) {
	p.resultConsumer = consumer
}

// SetWeight stations a weight in the PE through the dedicated weight path.
func (p *PE) SetWeight(w int16) {
	p.weight = w
}

// SetWeightLoading toggles weight-loading mode. Only meaningful when the
// PE shares the partial-sum path for weight delivery.
func (p *PE) SetWeightLoading(on bool) {
	p.weightLoading = on
}

// ReceiveActivation latches an incoming activation and forwards it east.
// A PE that is still multiplying drops the activation with a warning.
func (p *PE) ReceiveActivation(a int16) {
	if p.busy {
		p.logger.Warn("activation dropped, PE busy",
			"pe", p.name,
			"activation", a,
		)
		return
	}

	p.activation = a
	p.actValid = true

	if p.actOut != nil {
		p.actOut.Push(a)
	}

	if p.dataflow == LocalAccum {
		p.fireMAC(p.accumulator)
		return
	}

	if p.psumValid {
		p.fireMAC(p.psumIn)
	}
}

// ReceivePartialSum latches an incoming partial sum from the north. While
// weight-loading mode is on and the partial-sum path is shared, the value
// stations a weight instead.
func (p *PE) ReceivePartialSum(psum int32) {
	if p.portMode == gemm.SharedWeightPartialSumPort && p.weightLoading {
		p.weight = int16(psum)
		return
	}

	if p.dataflow == LocalAccum {
		p.accumulator += psum
		return
	}

	p.psumIn = psum
	p.psumValid = true

	if p.actValid && !p.busy {
		p.fireMAC(p.psumIn)
	}
}

// ControlSignal applies a control code to the PE. Reset clears all burst
// state but keeps the stationary weight. Emit hands the accumulator to the
// bound result consumer. Unrecognized codes are logged and ignored.
func (p *PE) ControlSignal(signal int) {
	switch signal {
	case gemm.CtrlReset:
		p.activation = 0
		p.actValid = false
		p.psumIn = 0
		p.psumValid = false
		p.busy = false
		p.fired = false
		p.countdown = 0
		p.pendingPsum = 0
		p.accumulator = 0

	case gemm.CtrlEmitResult:
		if p.resultConsumer == nil {
			p.logger.Warn("emit signal with no result consumer bound",
				"pe", p.name)
			return
		}
		p.resultConsumer(p.accumulator)

	default:
		p.logger.Warn("unrecognized control signal",
			"pe", p.name,
			"signal", signal,
		)
	}
}

// Tick advances the multiply countdown by one cycle. The tick in the
// cycle a MAC fires does not age it, so the multiply always spans the
// full compute latency no matter when within a cycle it started.
func (p *PE) Tick() (madeProgress bool) {
	if !p.busy {
		return false
	}

	if p.fired {
		p.fired = false
		return true
	}

	p.countdown--
	if p.countdown <= 0 {
		p.complete()
	}

	return true
}

func (p *PE) fireMAC(psum int32) {
	p.pendingPsum = gemm.MAC(psum, p.weight, p.activation)
	p.macCount++

	if p.computeLatency == 0 {
		p.complete()
		return
	}

	p.busy = true
	p.fired = true
	p.countdown = p.computeLatency
}

func (p *PE) complete() {
	p.busy = false
	p.actValid = false
	p.psumValid = false
	p.accumulator = p.pendingPsum

	if p.dataflow == PsumFlow && p.psumOut != nil {
		p.psumOut.Push(p.pendingPsum)
	}
}

// Weight returns the stationary weight.
func (p *PE) Weight() int16 {
	return p.weight
}

// Accumulator returns the current accumulator value.
func (p *PE) Accumulator() int32 {
	return p.accumulator
}

// MACCount returns how many multiply-accumulates the PE has performed.
func (p *PE) MACCount() uint64 {
	return p.macCount
}

// Busy reports whether a multiply is still in flight.
func (p *PE) Busy() bool {
	return p.busy
}

// Builder can create new PEs.
type Builder struct {
	portMode       gemm.PortMode
	dataflow       DataflowMode
	computeLatency int
	logger         *slog.Logger
}

// WithPortMode sets how the PE receives its weight.
func (b Builder) WithPortMode(mode gemm.PortMode) Builder {
	b.portMode = mode
	return b
}

// WithDataflow sets what the PE does with computed partial sums.
func (b Builder) WithDataflow(mode DataflowMode) Builder {
	b.dataflow = mode
	return b
}

// WithComputeLatency sets how many cycles one multiply-accumulate takes.
func (b Builder) WithComputeLatency(latency int) Builder {
	if latency < 0 {
		panic("compute latency cannot be negative")
	}
	b.computeLatency = latency
	return b
}

// WithLogger sets the logger for warnings.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a PE.
func (b Builder) Build(name string) *PE {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PE{
		name:           name,
		logger:         logger,
		portMode:       b.portMode,
		dataflow:       b.dataflow,
		computeLatency: b.computeLatency,
	}
}
