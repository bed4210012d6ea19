package array

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gemmsim/gemm"
	"github.com/sarchlab/gemmsim/pe"
)

// Builder can create systolic arrays.
type Builder struct {
	engine         sim.Engine
	freq           sim.Freq
	rows, cols     int
	computeLatency int
	delayLatency   int
	actWidth       int
	weightWidth    int
	portMode       gemm.PortMode
	dataflow       pe.DataflowMode
	logger         *slog.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:         1 * sim.GHz,
		rows:         4,
		cols:         4,
		delayLatency: 1,
		actWidth:     16,
		weightWidth:  16,
	}
}

// WithEngine sets the engine that drives the array.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the array.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithRows sets the number of PE rows.
func (b Builder) WithRows(rows int) Builder {
	b.rows = rows
	return b
}

// WithCols sets the number of PE columns.
func (b Builder) WithCols(cols int) Builder {
	b.cols = cols
	return b
}

// WithComputeLatency sets how many cycles one multiply-accumulate takes.
func (b Builder) WithComputeLatency(latency int) Builder {
	b.computeLatency = latency
	return b
}

// WithDelayLatency sets the latency of the delay lines between PEs.
func (b Builder) WithDelayLatency(latency int) Builder {
	b.delayLatency = latency
	return b
}

// WithActWidth sets the activation bit width.
func (b Builder) WithActWidth(width int) Builder {
	b.actWidth = width
	return b
}

// WithWeightWidth sets the weight bit width.
func (b Builder) WithWeightWidth(width int) Builder {
	b.weightWidth = width
	return b
}

// WithPortMode sets how PEs receive their weights.
func (b Builder) WithPortMode(mode gemm.PortMode) Builder {
	b.portMode = mode
	return b
}

// WithDataflow sets whether partial sums flow south or accumulate locally.
func (b Builder) WithDataflow(mode pe.DataflowMode) Builder {
	b.dataflow = mode
	return b
}

// WithLogger sets the logger used by the array and its PEs.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a systolic array.
func (b Builder) Build(name string) *Array {
	b.mustBeValid()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Array{
		logger:         logger,
		rows:           b.rows,
		cols:           b.cols,
		computeLatency: b.computeLatency,
		delayLatency:   b.delayLatency,
		portMode:       b.portMode,
		dataflow:       b.dataflow,
	}
	a.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, a)

	b.buildGrid(a, name)
	b.buildPorts(a, name)

	return a
}

func (b Builder) mustBeValid() {
	if b.rows < 1 || b.cols < 1 {
		panic(fmt.Sprintf("invalid array shape %dx%d", b.rows, b.cols))
	}

	if b.delayLatency < 1 {
		panic("delay latency must be at least 1")
	}

	if b.computeLatency < 0 {
		panic("compute latency cannot be negative")
	}

	if b.actWidth != 16 || b.weightWidth != 16 {
		panic(fmt.Sprintf(
			"only 16-bit operands are supported, got act=%d weight=%d",
			b.actWidth, b.weightWidth))
	}
}

func (b Builder) buildGrid(a *Array, name string) {
	a.pes = make([]*pe.PE, b.rows*b.cols)
	a.actLines = make([]*pe.DelayLine[int16], b.rows*b.cols)
	a.psumLines = make([]*pe.DelayLine[int32], b.rows*b.cols)

	peBuilder := pe.Builder{}.
		WithPortMode(b.portMode).
		WithDataflow(b.dataflow).
		WithComputeLatency(b.computeLatency).
		WithLogger(a.logger)

	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			a.pes[r*b.cols+c] = peBuilder.Build(
				fmt.Sprintf("%s.PE[%d][%d]", name, r, c))
		}
	}

	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			b.wireOnePE(a, name, r, c)
		}
	}
}

func (b Builder) wireOnePE(a *Array, name string, r, c int) {
	i := r*b.cols + c
	p := a.pes[i]

	actConsumer := func(int16) {}
	if c < b.cols-1 {
		east := a.pes[i+1]
		actConsumer = east.ReceiveActivation
	}
	a.actLines[i] = pe.NewDelayLine[int16](
		fmt.Sprintf("%s.PE[%d][%d].ActOut", name, r, c),
		b.delayLatency,
		actConsumer,
	)
	p.BindActivationOutput(a.actLines[i])

	col := c
	psumConsumer := func(v int32) {
		if a.results != nil {
			a.results[col] = v
		}
	}
	if r < b.rows-1 {
		south := a.pes[i+b.cols]
		psumConsumer = south.ReceivePartialSum
	}
	a.psumLines[i] = pe.NewDelayLine[int32](
		fmt.Sprintf("%s.PE[%d][%d].PsumOut", name, r, c),
		b.delayLatency,
		psumConsumer,
	)
	p.BindPartialSumOutput(a.psumLines[i])

	p.BindResultConsumer(func(v int32) {
		if a.results != nil {
			a.results[col] += v
		}
	})
}

func (b Builder) buildPorts(a *Array, name string) {
	a.CmdPort = gemm.NewPort(a, 4, 4, name+".Cmd")
	a.RespPort = gemm.NewPort(a, 4, 4, name+".Resp")
	a.AddPort("Cmd", a.CmdPort)
	a.AddPort("Resp", a.RespPort)
}
