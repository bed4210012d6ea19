// Package config assembles a ready-to-run simulation platform out of a
// systolic array and the multiplier that drives it.
package config

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"

	"github.com/sarchlab/gemmsim/api"
	"github.com/sarchlab/gemmsim/array"
	"github.com/sarchlab/gemmsim/gemm"
	"github.com/sarchlab/gemmsim/pe"
)

// A Platform bundles the engine with the connected components.
type Platform struct {
	Engine     sim.Engine
	Array      *array.Array
	Multiplier *api.MatrixMultiplier
}

// PlatformBuilder can build simulation platforms.
type PlatformBuilder struct {
	engine         sim.Engine
	freq           sim.Freq
	rows, cols     int
	computeLatency int
	delayLatency   int
	portMode       gemm.PortMode
	dataflow       pe.DataflowMode
	monitor        *monitoring.Monitor
	logger         *slog.Logger
}

// MakePlatformBuilder creates a builder with default parameters.
func MakePlatformBuilder() PlatformBuilder {
	return PlatformBuilder{
		freq:         1 * sim.GHz,
		rows:         4,
		cols:         4,
		delayLatency: 1,
	}
}

// WithEngine sets the engine. A serial engine is created when none is
// given.
func (b PlatformBuilder) WithEngine(engine sim.Engine) PlatformBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of all components.
func (b PlatformBuilder) WithFreq(freq sim.Freq) PlatformBuilder {
	b.freq = freq
	return b
}

// WithArrayShape sets the dimensions of the systolic array.
func (b PlatformBuilder) WithArrayShape(rows, cols int) PlatformBuilder {
	b.rows = rows
	b.cols = cols
	return b
}

// WithComputeLatency sets the multiply latency of every PE.
func (b PlatformBuilder) WithComputeLatency(latency int) PlatformBuilder {
	b.computeLatency = latency
	return b
}

// WithDelayLatency sets the latency of the delay lines between PEs.
func (b PlatformBuilder) WithDelayLatency(latency int) PlatformBuilder {
	b.delayLatency = latency
	return b
}

// WithPortMode sets how PEs receive their weights.
func (b PlatformBuilder) WithPortMode(mode gemm.PortMode) PlatformBuilder {
	b.portMode = mode
	return b
}

// WithDataflow sets whether partial sums flow south or accumulate locally.
func (b PlatformBuilder) WithDataflow(mode pe.DataflowMode) PlatformBuilder {
	b.dataflow = mode
	return b
}

// WithMonitor registers the built components with a monitor.
func (b PlatformBuilder) WithMonitor(monitor *monitoring.Monitor) PlatformBuilder {
	b.monitor = monitor
	return b
}

// WithLogger sets the logger of all components.
func (b PlatformBuilder) WithLogger(logger *slog.Logger) PlatformBuilder {
	b.logger = logger
	return b
}

func (b PlatformBuilder) buildLogger() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}

	return slog.Default()
}

// Build creates a platform with the multiplier wired to the array.
func (b PlatformBuilder) Build(name string) *Platform {
	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	arr := array.MakeBuilder().
		WithEngine(engine).
		WithFreq(b.freq).
		WithRows(b.rows).
		WithCols(b.cols).
		WithComputeLatency(b.computeLatency).
		WithDelayLatency(b.delayLatency).
		WithPortMode(b.portMode).
		WithDataflow(b.dataflow).
		WithLogger(b.logger).
		Build(name + ".Array")

	mult := api.MakeBuilder().
		WithEngine(engine).
		WithFreq(b.freq).
		WithArrayShape(b.rows, b.cols).
		WithLogger(b.logger).
		Build(name + ".Multiplier")

	conn := directconnection.MakeBuilder().
		WithEngine(engine).
		WithFreq(b.freq).
		Build(name + ".Conn")
	conn.PlugIn(mult.GetPortByName("Array"))
	conn.PlugIn(mult.GetPortByName("Resp"))
	conn.PlugIn(arr.CmdPort)
	conn.PlugIn(arr.RespPort)

	tracer := gemm.PortTracer{Logger: b.buildLogger()}
	for _, port := range []sim.Port{
		mult.GetPortByName("Array"),
		mult.GetPortByName("Resp"),
		arr.CmdPort,
		arr.RespPort,
	} {
		port.AcceptHook(tracer)
	}

	mult.SetRemoteArrayPort(arr.CmdPort.AsRemote())
	arr.SetRemoteResponsePort(mult.GetPortByName("Resp").AsRemote())

	if b.monitor != nil {
		b.monitor.RegisterEngine(engine)
		b.monitor.RegisterComponent(arr)
		b.monitor.RegisterComponent(mult)
	}

	return &Platform{
		Engine:     engine,
		Array:      arr,
		Multiplier: mult,
	}
}
