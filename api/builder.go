package api

import (
	"log/slog"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gemmsim/gemm"
)

// Builder can create matrix multipliers.
type Builder struct {
	engine               sim.Engine
	freq                 sim.Freq
	arrayRows, arrayCols int
	logger               *slog.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:      1 * sim.GHz,
		arrayRows: 4,
		arrayCols: 4,
	}
}

// WithEngine sets the engine that drives the multiplier.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the multiplier.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithArrayShape sets the dimensions of the array being driven.
func (b Builder) WithArrayShape(rows, cols int) Builder {
	if rows < 1 || cols < 1 {
		panic("array shape must be positive")
	}
	b.arrayRows = rows
	b.arrayCols = cols
	return b
}

// WithLogger sets the logger of the multiplier.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a matrix multiplier.
func (b Builder) Build(name string) *MatrixMultiplier {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &MatrixMultiplier{
		logger:    logger,
		arrayRows: b.arrayRows,
		arrayCols: b.arrayCols,
	}
	m.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, m)

	arrayPort := gemm.NewPort(m, 4, 4, name+".Array")
	respPort := gemm.NewPort(m, 4, 4, name+".Resp")
	donePort := gemm.NewPort(m, 4, 4, name+".Done")
	m.AddPort("Array", arrayPort)
	m.AddPort("Resp", respPort)
	m.AddPort("Done", donePort)
	m.arrayPort = arrayPort
	m.respPort = respPort
	m.donePort = donePort

	return m
}
