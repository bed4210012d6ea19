package gemm

import "github.com/sarchlab/akita/v4/sim"

// WeightMsg carries a full weight matrix to the array.
type WeightMsg struct {
	sim.MsgMeta

	Weights *Matrix
}

// Meta returns the meta data of the msg.
func (m *WeightMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the msg with a new ID.
func (m *WeightMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

// WeightMsgBuilder is a factory for WeightMsg.
type WeightMsgBuilder struct {
	src, dst sim.RemotePort
	weights  *Matrix
}

// WithSrc sets the source port of the msg.
func (b WeightMsgBuilder) WithSrc(src sim.RemotePort) WeightMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b WeightMsgBuilder) WithDst(dst sim.RemotePort) WeightMsgBuilder {
	b.dst = dst
	return b
}

// WithWeights sets the weight matrix of the msg.
func (b WeightMsgBuilder) WithWeights(w *Matrix) WeightMsgBuilder {
	b.weights = w
	return b
}

// Build creates a WeightMsg.
func (b WeightMsgBuilder) Build() *WeightMsg {
	return &WeightMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Weights: b.weights,
	}
}

// VectorMsg carries one input vector to the array for a single burst.
type VectorMsg struct {
	sim.MsgMeta

	Vector *Vector
}

// Meta returns the meta data of the msg.
func (m *VectorMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the msg with a new ID.
func (m *VectorMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

// VectorMsgBuilder is a factory for VectorMsg.
type VectorMsgBuilder struct {
	src, dst sim.RemotePort
	vector   *Vector
}

// WithSrc sets the source port of the msg.
func (b VectorMsgBuilder) WithSrc(src sim.RemotePort) VectorMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b VectorMsgBuilder) WithDst(dst sim.RemotePort) VectorMsgBuilder {
	b.dst = dst
	return b
}

// WithVector sets the vector of the msg.
func (b VectorMsgBuilder) WithVector(v *Vector) VectorMsgBuilder {
	b.vector = v
	return b
}

// Build creates a VectorMsg.
func (b VectorMsgBuilder) Build() *VectorMsg {
	return &VectorMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Vector: b.vector,
	}
}

// ControlMsg broadcasts a control signal to every PE in the array.
type ControlMsg struct {
	sim.MsgMeta

	Signal int
}

// Meta returns the meta data of the msg.
func (m *ControlMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the msg with a new ID.
func (m *ControlMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

// ControlMsgBuilder is a factory for ControlMsg.
type ControlMsgBuilder struct {
	src, dst sim.RemotePort
	signal   int
}

// WithSrc sets the source port of the msg.
func (b ControlMsgBuilder) WithSrc(src sim.RemotePort) ControlMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b ControlMsgBuilder) WithDst(dst sim.RemotePort) ControlMsgBuilder {
	b.dst = dst
	return b
}

// WithSignal sets the control signal of the msg.
func (b ControlMsgBuilder) WithSignal(signal int) ControlMsgBuilder {
	b.signal = signal
	return b
}

// Build creates a ControlMsg.
func (b ControlMsgBuilder) Build() *ControlMsg {
	return &ControlMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Signal: b.signal,
	}
}

// ColumnResultMsg carries the per-column sums of one finished burst.
type ColumnResultMsg struct {
	sim.MsgMeta

	Values []int32
	Cycles uint64
}

// Meta returns the meta data of the msg.
func (m *ColumnResultMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the msg with a new ID.
func (m *ColumnResultMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

// ColumnResultMsgBuilder is a factory for ColumnResultMsg.
type ColumnResultMsgBuilder struct {
	src, dst sim.RemotePort
	values   []int32
	cycles   uint64
}

// WithSrc sets the source port of the msg.
func (b ColumnResultMsgBuilder) WithSrc(src sim.RemotePort) ColumnResultMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b ColumnResultMsgBuilder) WithDst(dst sim.RemotePort) ColumnResultMsgBuilder {
	b.dst = dst
	return b
}

// WithValues sets the column sums of the msg.
func (b ColumnResultMsgBuilder) WithValues(values []int32) ColumnResultMsgBuilder {
	b.values = values
	return b
}

// WithCycles sets the cycle count consumed by the burst.
func (b ColumnResultMsgBuilder) WithCycles(cycles uint64) ColumnResultMsgBuilder {
	b.cycles = cycles
	return b
}

// Build creates a ColumnResultMsg.
func (b ColumnResultMsgBuilder) Build() *ColumnResultMsg {
	return &ColumnResultMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Values: b.values,
		Cycles: b.cycles,
	}
}

// ResultMsg carries a finished product matrix out of the multiplier.
type ResultMsg struct {
	sim.MsgMeta

	Result *Matrix
}

// Meta returns the meta data of the msg.
func (m *ResultMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Clone creates a copy of the msg with a new ID.
func (m *ResultMsg) Clone() sim.Msg {
	clone := *m
	clone.ID = sim.GetIDGenerator().Generate()
	return &clone
}

// ResultMsgBuilder is a factory for ResultMsg.
type ResultMsgBuilder struct {
	src, dst sim.RemotePort
	result   *Matrix
}

// WithSrc sets the source port of the msg.
func (b ResultMsgBuilder) WithSrc(src sim.RemotePort) ResultMsgBuilder {
	b.src = src
	return b
}

// WithDst sets the destination port of the msg.
func (b ResultMsgBuilder) WithDst(dst sim.RemotePort) ResultMsgBuilder {
	b.dst = dst
	return b
}

// WithResult sets the product matrix of the msg.
func (b ResultMsgBuilder) WithResult(result *Matrix) ResultMsgBuilder {
	b.result = result
	return b
}

// Build creates a ResultMsg.
func (b ResultMsgBuilder) Build() *ResultMsg {
	return &ResultMsg{
		MsgMeta: sim.MsgMeta{
			ID:  sim.GetIDGenerator().Generate(),
			Src: b.src,
			Dst: b.dst,
		},
		Result: b.result,
	}
}
