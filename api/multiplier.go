// Package api provides the driver that tiles full matrix products onto a
// systolic array.
package api

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gemmsim/gemm"
)

// port is the slice of sim.Port the multiplier uses. It exists so tests
// can swap the array connection out.
//
//go:generate mockgen -write_package_comment=false -source=multiplier.go -package=api -destination=mock_port_test.go
type port interface {
	AsRemote() sim.RemotePort
	CanSend() bool
	Send(msg sim.Msg) *sim.SendError
	PeekIncoming() sim.Msg
	RetrieveIncoming() sim.Msg
}

type jobPhase int

const (
	phaseLoadWeights jobPhase = iota
	phaseFeedVector
	phaseAwaitResult
)

// A multiplyJob tracks one matrix product through its block schedule.
type multiplyJob struct {
	a, b *gemm.Matrix

	// acc holds the full product at int32 precision. It is truncated to
	// int16 once, when the job finishes.
	acc    []int32
	result *gemm.Matrix

	rowBlocks, colBlocks, kBlocks int
	rb, cb, kb                    int
	row                           int

	phase jobPhase
}

// A MatrixMultiplier drives a systolic array to compute full matrix
// products. It stations one weight tile at a time and feeds the matching
// rows of the left operand as vectors, accumulating the column sums that
// come back.
type MatrixMultiplier struct {
	*sim.TickingComponent

	logger *slog.Logger

	arrayRows, arrayCols int

	arrayPort port
	respPort  port
	donePort  port
	arrayDst  sim.RemotePort
	doneDst   sim.RemotePort

	job *multiplyJob

	resultConsumer func(*gemm.Matrix)

	multiplications uint64
	blocks          uint64
}

// SetRemoteArrayPort sets the command port of the array being driven.
func (m *MatrixMultiplier) SetRemoteArrayPort(remote sim.RemotePort) {
	m.arrayDst = remote
}

// SetRemoteDonePort sets the port that receives finished products.
func (m *MatrixMultiplier) SetRemoteDonePort(remote sim.RemotePort) {
	m.doneDst = remote
}

// BindResultConsumer attaches a local sink for finished products.
func (m *MatrixMultiplier) BindResultConsumer(consumer func(*gemm.Matrix)) {
	m.resultConsumer = consumer
}

// Multiply starts computing a*b. The inner dimensions must agree and no
// other product may be in flight. The result is available through Result
// once Done reports true.
func (m *MatrixMultiplier) Multiply(a, b *gemm.Matrix) error {
	if m.job != nil && m.job.result == nil {
		m.logger.Error("multiply rejected, product in flight",
			"multiplier", m.Name())
		return fmt.Errorf("product already in flight: %w", gemm.ErrBusy)
	}

	if a.Cols != b.Rows {
		m.logger.Error("inner dimensions do not agree",
			"multiplier", m.Name(),
			"aCols", a.Cols,
			"bRows", b.Rows,
		)
		return fmt.Errorf("cannot multiply %dx%d by %dx%d: %w",
			a.Rows, a.Cols, b.Rows, b.Cols, gemm.ErrShapeMismatch)
	}

	m.job = &multiplyJob{
		a:         a,
		b:         b,
		acc:       make([]int32, a.Rows*b.Cols),
		rowBlocks: ceilDiv(a.Rows, m.arrayRows),
		colBlocks: ceilDiv(b.Cols, m.arrayCols),
		kBlocks:   ceilDiv(a.Cols, m.arrayRows),
		phase:     phaseLoadWeights,
	}
	m.job.row = 0

	if m.Engine != nil {
		m.TickLater()
	}

	return nil
}

// Done reports whether the last product has finished.
func (m *MatrixMultiplier) Done() bool {
	return m.job != nil && m.job.result != nil
}

// Result returns the finished product. It panics when no product is done.
func (m *MatrixMultiplier) Result() *gemm.Matrix {
	if !m.Done() {
		panic("no finished product to return")
	}

	return m.job.result
}

// Multiplications returns how many products the multiplier has finished.
func (m *MatrixMultiplier) Multiplications() uint64 {
	return m.multiplications
}

// Blocks returns how many weight tiles have been stationed.
func (m *MatrixMultiplier) Blocks() uint64 {
	return m.blocks
}

// Tick runs the multiplier for one cycle.
func (m *MatrixMultiplier) Tick() (madeProgress bool) {
	madeProgress = m.doRecvResult() || madeProgress
	madeProgress = m.doDriveArray() || madeProgress

	return madeProgress
}

func (m *MatrixMultiplier) doDriveArray() bool {
	job := m.job
	if job == nil || job.result != nil {
		return false
	}

	switch job.phase {
	case phaseLoadWeights:
		return m.sendWeightTile(job)
	case phaseFeedVector:
		return m.sendRowVector(job)
	default:
		return false
	}
}

func (m *MatrixMultiplier) sendWeightTile(job *multiplyJob) bool {
	if !m.arrayPort.CanSend() {
		return false
	}

	msg := gemm.WeightMsgBuilder{}.
		WithSrc(m.arrayPort.AsRemote()).
		WithDst(m.arrayDst).
		WithWeights(m.weightTile(job)).
		Build()

	if err := m.arrayPort.Send(msg); err != nil {
		panic("array cannot handle the command rate")
	}

	m.blocks++
	job.row = job.rb * m.arrayRows
	job.phase = phaseFeedVector

	return true
}

// weightTile builds the tile for the current block: tile[r][c] holds
// b[k0+r][j0+c], zero-padded at the edges. Stationing it as-is makes the
// array produce the b-columns of the product.
func (m *MatrixMultiplier) weightTile(job *multiplyJob) *gemm.Matrix {
	k0 := job.kb * m.arrayRows
	j0 := job.cb * m.arrayCols

	tile := gemm.NewMatrix(m.arrayRows, m.arrayCols)
	for r := 0; r < m.arrayRows; r++ {
		for c := 0; c < m.arrayCols; c++ {
			if k0+r < job.b.Rows && j0+c < job.b.Cols {
				tile.Set(r, c, job.b.At(k0+r, j0+c))
			}
		}
	}

	return tile
}

func (m *MatrixMultiplier) sendRowVector(job *multiplyJob) bool {
	if !m.arrayPort.CanSend() {
		return false
	}

	k0 := job.kb * m.arrayRows

	x := gemm.NewVector(m.arrayRows)
	for r := 0; r < m.arrayRows; r++ {
		if k0+r < job.a.Cols {
			x.Set(r, job.a.At(job.row, k0+r))
		}
	}

	msg := gemm.VectorMsgBuilder{}.
		WithSrc(m.arrayPort.AsRemote()).
		WithDst(m.arrayDst).
		WithVector(x).
		Build()

	if err := m.arrayPort.Send(msg); err != nil {
		panic("array cannot handle the command rate")
	}

	job.phase = phaseAwaitResult

	return true
}

func (m *MatrixMultiplier) doRecvResult() bool {
	item := m.respPort.PeekIncoming()
	if item == nil {
		return false
	}

	msg, ok := item.(*gemm.ColumnResultMsg)
	if !ok {
		panic(fmt.Sprintf("multiplier cannot handle msg %T", item))
	}

	job := m.job
	if job == nil || job.phase != phaseAwaitResult {
		panic("column result arrived with no burst outstanding")
	}

	m.respPort.RetrieveIncoming()
	m.accumulate(job, msg.Values)
	m.advance(job)

	return true
}

func (m *MatrixMultiplier) accumulate(job *multiplyJob, values []int32) {
	j0 := job.cb * m.arrayCols
	n := job.b.Cols

	for c, v := range values {
		if j0+c < n {
			job.acc[job.row*n+j0+c] += v
		}
	}
}

// advance moves the job to the next row of the current block, or to the
// next block, or finishes the product.
func (m *MatrixMultiplier) advance(job *multiplyJob) {
	job.row++

	rowEnd := (job.rb + 1) * m.arrayRows
	if rowEnd > job.a.Rows {
		rowEnd = job.a.Rows
	}

	if job.row < rowEnd {
		job.phase = phaseFeedVector
		return
	}

	job.kb++
	if job.kb == job.kBlocks {
		job.kb = 0
		job.cb++
	}
	if job.cb == job.colBlocks {
		job.cb = 0
		job.rb++
	}
	if job.rb == job.rowBlocks {
		m.finishJob(job)
		return
	}

	job.phase = phaseLoadWeights
}

func (m *MatrixMultiplier) finishJob(job *multiplyJob) {
	result := gemm.NewMatrix(job.a.Rows, job.b.Cols)
	for i := 0; i < job.a.Rows; i++ {
		for j := 0; j < job.b.Cols; j++ {
			result.Set(i, j, int16(job.acc[i*job.b.Cols+j]))
		}
	}

	job.result = result
	m.multiplications++

	gemm.Trace("MultiplyDone",
		"multiplier", m.Name(),
		"rows", result.Rows,
		"cols", result.Cols,
		"blocks", m.blocks,
	)

	if m.resultConsumer != nil {
		m.resultConsumer(result)
	}

	if m.doneDst != "" && m.donePort != nil {
		msg := gemm.ResultMsgBuilder{}.
			WithSrc(m.donePort.AsRemote()).
			WithDst(m.doneDst).
			WithResult(result).
			Build()
		if err := m.donePort.Send(msg); err != nil {
			m.logger.Warn("done port backpressured, result dropped",
				"multiplier", m.Name())
		}
	}
}

// Reset clears a finished product so a new one can start.
func (m *MatrixMultiplier) Reset() {
	if m.job != nil && m.job.result == nil {
		panic("cannot reset while a product is in flight")
	}

	m.job = nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
