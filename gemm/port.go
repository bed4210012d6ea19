package gemm

import (
	"fmt"
	"sync"

	"github.com/sarchlab/akita/v4/sim"
)

// HookPosPortMsgSend marks when a message enters a port's outgoing buffer.
var HookPosPortMsgSend = &sim.HookPos{Name: "Port Msg Send"}

// HookPosPortMsgRecvd marks when an inbound message arrives at a port.
var HookPosPortMsgRecvd = &sim.HookPos{Name: "Port Msg Recv"}

// HookPosPortMsgRetrieve marks when a message leaves a port buffer.
var HookPosPortMsgRetrieve = &sim.HookPos{Name: "Port Msg Retrieve"}

// A port carries operand and result messages between the multiplier and
// the array. Both directions are buffered, so a slow receiver
// backpressures the sender instead of losing messages.
type port struct {
	sim.HookableBase

	lock sync.Mutex
	name string
	comp sim.Component
	conn sim.Connection

	incomingBuf sim.Buffer
	outgoingBuf sim.Buffer
}

// NewPort creates a buffered port owned by comp.
func NewPort(
	comp sim.Component,
	incomingBufCap, outgoingBufCap int,
	name string,
) sim.Port {
	return &port{
		name:        name,
		comp:        comp,
		incomingBuf: sim.NewBuffer(name+".IncomingBuf", incomingBufCap),
		outgoingBuf: sim.NewBuffer(name+".OutgoingBuf", outgoingBufCap),
	}
}

// Name returns the name of the port.
func (p *port) Name() string {
	return p.name
}

// AsRemote returns the remote port name.
func (p *port) AsRemote() sim.RemotePort {
	return sim.RemotePort(p.name)
}

// SetConnection sets which connection is plugged in to this port.
func (p *port) SetConnection(conn sim.Connection) {
	if p.conn != nil {
		panic(fmt.Sprintf(
			"connection already set to %s, now connecting to %s",
			p.conn.Name(), conn.Name(),
		))
	}

	p.conn = conn
}

// Component returns the owner component of the port.
func (p *port) Component() sim.Component {
	return p.comp
}

// CanSend checks if the port can send a message without error.
func (p *port) CanSend() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.outgoingBuf.CanPush()
}

// Send queues a message for the connection to pick up. A full outgoing
// buffer backpressures the caller with a SendError.
func (p *port) Send(msg sim.Msg) *sim.SendError {
	p.mustBeOperandMsg(msg)

	p.lock.Lock()
	if !p.outgoingBuf.CanPush() {
		p.lock.Unlock()
		return sim.NewSendError()
	}

	firstInBuf := p.outgoingBuf.Size() == 0
	p.outgoingBuf.Push(msg)
	p.invokePortHook(HookPosPortMsgSend, msg)
	p.lock.Unlock()

	if firstInBuf {
		p.conn.NotifySend()
	}

	return nil
}

// Deliver is used by the connection to hand an inbound message to the
// port. A full incoming buffer backpressures the connection.
func (p *port) Deliver(msg sim.Msg) *sim.SendError {
	p.lock.Lock()
	if !p.incomingBuf.CanPush() {
		p.lock.Unlock()
		return sim.NewSendError()
	}

	firstInBuf := p.incomingBuf.Size() == 0
	p.incomingBuf.Push(msg)
	p.invokePortHook(HookPosPortMsgRecvd, msg)
	p.lock.Unlock()

	if p.comp != nil && firstInBuf {
		p.comp.NotifyRecv(p)
	}

	return nil
}

// RetrieveIncoming takes the next inbound message.
func (p *port) RetrieveIncoming() sim.Msg {
	msg, freed := p.pop(p.incomingBuf)
	if freed {
		p.conn.NotifyAvailable(p)
	}

	return msg
}

// RetrieveOutgoing hands the next queued message to the connection.
func (p *port) RetrieveOutgoing() sim.Msg {
	msg, freed := p.pop(p.outgoingBuf)
	if freed {
		p.comp.NotifyPortFree(p)
	}

	return msg
}

// pop removes the head of a buffer, reporting whether the pop opened up
// space in a previously full buffer.
func (p *port) pop(buf sim.Buffer) (msg sim.Msg, freed bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	item := buf.Pop()
	if item == nil {
		return nil, false
	}

	msg = item.(sim.Msg)
	p.invokePortHook(HookPosPortMsgRetrieve, msg)

	return msg, buf.Size() == buf.Capacity()-1
}

// PeekIncoming returns the first incoming message without removing it.
func (p *port) PeekIncoming() sim.Msg {
	return p.peek(p.incomingBuf)
}

// PeekOutgoing returns the first outgoing message without removing it.
func (p *port) PeekOutgoing() sim.Msg {
	return p.peek(p.outgoingBuf)
}

func (p *port) peek(buf sim.Buffer) sim.Msg {
	p.lock.Lock()
	defer p.lock.Unlock()

	item := buf.Peek()
	if item == nil {
		return nil
	}

	return item.(sim.Msg)
}

// NotifyAvailable is called by the connection when it can accept messages
// again.
func (p *port) NotifyAvailable() {
	if p.comp != nil {
		p.comp.NotifyPortFree(p)
	}
}

func (p *port) invokePortHook(pos *sim.HookPos, msg sim.Msg) {
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   msg,
	})
}

// mustBeOperandMsg guards against wiring bugs. Only this module's message
// types may travel, and each must be addressed from this port to another.
func (p *port) mustBeOperandMsg(msg sim.Msg) {
	switch msg.(type) {
	case *WeightMsg, *VectorMsg, *ControlMsg, *ColumnResultMsg, *ResultMsg:
	default:
		panic(fmt.Sprintf("port %s cannot carry %T", p.name, msg))
	}

	meta := msg.Meta()
	if string(meta.Src) != p.name {
		panic("sending port is not msg src")
	}

	if meta.Dst == "" {
		panic("msg dst is not set")
	}

	if meta.Src == meta.Dst {
		panic("msg sent back to its own port")
	}
}
