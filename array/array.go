// Package array implements a weight-stationary systolic array that
// multiplies a stationed matrix with vectors fed one burst at a time.
package array

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gemmsim/gemm"
	"github.com/sarchlab/gemmsim/pe"
)

// An Array owns a grid of PEs and the delay lines between them.
// Activations flow east, partial sums flow south, and the sums that fall
// out of the bottom row are the per-column results of a burst.
//
// The array computes out[c] = sum over r of W[r][c]*x[r] for the stationed
// matrix W. Callers that want W*x station the transpose.
type Array struct {
	*sim.TickingComponent

	logger *slog.Logger

	rows, cols     int
	computeLatency int
	delayLatency   int
	portMode       gemm.PortMode
	dataflow       pe.DataflowMode

	pes       []*pe.PE
	actLines  []*pe.DelayLine[int16]
	psumLines []*pe.DelayLine[int32]

	CmdPort  sim.Port
	RespPort sim.Port
	respDst  sim.RemotePort

	busy          bool
	cycle         uint64
	input         []int16
	results       []int32
	totalCycles   uint64
	pendingResult *gemm.ColumnResultMsg

	resultConsumer func([]int32)

	bursts uint64
}

// Rows returns the number of PE rows.
func (a *Array) Rows() int {
	return a.rows
}

// Cols returns the number of PE columns.
func (a *Array) Cols() int {
	return a.cols
}

// Busy reports whether a burst is in flight.
func (a *Array) Busy() bool {
	return a.busy
}

// Bursts returns how many bursts the array has completed.
func (a *Array) Bursts() uint64 {
	return a.bursts
}

// TotalMACs returns the number of multiply-accumulates performed by all
// PEs since construction.
func (a *Array) TotalMACs() uint64 {
	var total uint64
	for _, p := range a.pes {
		total += p.MACCount()
	}

	return total
}

// PE returns the processing element at row r, column c.
func (a *Array) PE(r, c int) *pe.PE {
	if r < 0 || r >= a.rows || c < 0 || c >= a.cols {
		panic(fmt.Sprintf("PE (%d, %d) out of range for %dx%d array",
			r, c, a.rows, a.cols))
	}

	return a.pes[r*a.cols+c]
}

// SetRemoteResponsePort sets the port that receives burst results.
func (a *Array) SetRemoteResponsePort(remote sim.RemotePort) {
	a.respDst = remote
}

// BindResultConsumer attaches a local sink for burst results, bypassing
// the response port.
func (a *Array) BindResultConsumer(consumer func([]int32)) {
	a.resultConsumer = consumer
}

// LoadWeights stations w[r][c] into PE(r, c). The matrix must match the
// array dimensions exactly and no burst may be in flight.
func (a *Array) LoadWeights(w *gemm.Matrix) error {
	if a.busy {
		a.logger.Error("weight load rejected mid-burst", "array", a.Name())
		return fmt.Errorf("cannot load weights mid-burst: %w", gemm.ErrBusy)
	}

	if w.Rows != a.rows || w.Cols != a.cols {
		a.logger.Error("weight matrix does not fit the array",
			"array", a.Name(),
			"rows", w.Rows, "cols", w.Cols,
			"arrayRows", a.rows, "arrayCols", a.cols,
		)
		return fmt.Errorf("weights are %dx%d, array is %dx%d: %w",
			w.Rows, w.Cols, a.rows, a.cols, gemm.ErrShapeMismatch)
	}

	for r := 0; r < a.rows; r++ {
		for c := 0; c < a.cols; c++ {
			a.stationWeight(a.pes[r*a.cols+c], w.At(r, c))
		}
	}

	return nil
}

func (a *Array) stationWeight(p *pe.PE, w int16) {
	if a.portMode == gemm.SharedWeightPartialSumPort {
		p.SetWeightLoading(true)
		p.ReceivePartialSum(int32(w))
		p.SetWeightLoading(false)
		return
	}

	p.SetWeight(w)
}

// FeedVector starts a burst for one input vector. The vector must have one
// element per PE row. Rejections leave the array state untouched.
func (a *Array) FeedVector(x *gemm.Vector) error {
	if a.busy {
		a.logger.Error("vector rejected, burst in flight", "array", a.Name())
		return fmt.Errorf("burst already in flight: %w", gemm.ErrBusy)
	}

	if x.Size != a.rows {
		a.logger.Error("vector does not fit the array",
			"array", a.Name(),
			"size", x.Size,
			"arrayRows", a.rows,
		)
		return fmt.Errorf("vector has %d elements, array has %d rows: %w",
			x.Size, a.rows, gemm.ErrShapeMismatch)
	}

	for _, p := range a.pes {
		p.ControlSignal(gemm.CtrlReset)
	}

	a.input = make([]int16, a.rows)
	for i := 0; i < a.rows; i++ {
		a.input[i] = x.At(i)
	}

	a.results = make([]int32, a.cols)
	a.cycle = 0
	a.totalCycles = a.burstCycles()
	a.busy = true

	if a.Engine != nil {
		a.TickLater()
	}

	return nil
}

// burstCycles returns how many cycles a burst takes from injection of the
// first activation to the arrival of the last column sum.
func (a *Array) burstCycles() uint64 {
	d := uint64(a.delayLatency)
	l := uint64(a.computeLatency)
	rows := uint64(a.rows)
	cols := uint64(a.cols)

	if a.dataflow == pe.LocalAccum {
		// The last activation reaches the far corner after the full
		// skew, then the multiplier drains.
		return (rows - 1) + (cols-1)*d + l
	}

	// Column c's sum falls out of the bottom at c*d + rows*(d+l), so the
	// last column bounds the burst.
	return (cols-1)*d + rows*(d+l)
}

// Tick runs the array for one cycle.
func (a *Array) Tick() (madeProgress bool) {
	madeProgress = a.doSend() || madeProgress
	madeProgress = a.doRecv() || madeProgress
	madeProgress = a.runCycle() || madeProgress

	return madeProgress
}

func (a *Array) doSend() bool {
	if a.pendingResult == nil {
		return false
	}

	if err := a.RespPort.Send(a.pendingResult); err != nil {
		return false
	}

	a.pendingResult = nil

	return true
}

func (a *Array) doRecv() bool {
	item := a.CmdPort.PeekIncoming()
	if item == nil {
		return false
	}

	switch msg := item.(type) {
	case *gemm.WeightMsg:
		if err := a.LoadWeights(msg.Weights); errors.Is(err, gemm.ErrBusy) {
			// Leave the message queued until the burst drains.
			return false
		}

	case *gemm.VectorMsg:
		if err := a.FeedVector(msg.Vector); errors.Is(err, gemm.ErrBusy) {
			return false
		}

	case *gemm.ControlMsg:
		for _, p := range a.pes {
			p.ControlSignal(msg.Signal)
		}

	default:
		panic(fmt.Sprintf("array cannot handle msg %T", item))
	}

	a.CmdPort.RetrieveIncoming()

	return true
}

// runCycle advances the burst by one processing cycle. Order matters.
// Data only ever flows to higher PE indices (east and south), so ticking
// the lines in descending index order guarantees that every push lands in
// an already-ticked line and takes the full line latency. Injections
// happen next, before the PE countdowns, so that every MAC fired in this
// cycle ages for the first time in the next one.
func (a *Array) runCycle() bool {
	if !a.busy {
		return false
	}

	for i := len(a.pes) - 1; i >= 0; i-- {
		a.psumLines[i].Tick()
		a.actLines[i].Tick()
	}

	a.injectWavefront()
	if a.dataflow == pe.PsumFlow {
		a.injectZeroPartialSums()
	}

	for _, p := range a.pes {
		p.Tick()
	}

	if a.cycle >= a.totalCycles {
		a.finishBurst()
		return true
	}

	a.cycle++

	return true
}

// injectWavefront feeds input[r] into the left edge of row r at cycle r.
// Interior columns are reached through the east delay lines, which keeps
// the diagonal skew intact.
func (a *Array) injectWavefront() {
	for r := 0; r < a.rows; r++ {
		activeCol := int64(a.cycle) - int64(r)
		if activeCol == 0 {
			a.pes[r*a.cols].ReceiveActivation(a.input[r])
		}
	}
}

// injectZeroPartialSums seeds the top of column c with a zero exactly when
// the wavefront reaches that column.
func (a *Array) injectZeroPartialSums() {
	for c := 0; c < a.cols; c++ {
		if a.cycle == uint64(c)*uint64(a.delayLatency) {
			a.pes[c].ReceivePartialSum(0)
		}
	}
}

func (a *Array) finishBurst() {
	if a.dataflow == pe.LocalAccum {
		for _, p := range a.pes {
			p.ControlSignal(gemm.CtrlEmitResult)
		}
	}

	values := a.results
	a.results = nil
	a.input = nil
	a.busy = false
	a.bursts++

	gemm.Trace("BurstDone",
		"array", a.Name(),
		"cycles", a.cycle,
		"values", values,
	)

	if a.resultConsumer != nil {
		a.resultConsumer(values)
	}

	if a.respDst != "" {
		a.pendingResult = gemm.ColumnResultMsgBuilder{}.
			WithSrc(a.RespPort.AsRemote()).
			WithDst(a.respDst).
			WithValues(values).
			WithCycles(a.cycle).
			Build()
	}
}
