package gemm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/sim"
)

// LevelTrace sits above Info so cycle-by-cycle traces can be filtered out.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs a cycle-level event on the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// A PortTracer is a hook that logs every message hop through the ports it
// is attached to at trace level.
type PortTracer struct {
	Logger *slog.Logger
}

// Func implements sim.Hook.
func (t PortTracer) Func(ctx sim.HookCtx) {
	msg, ok := ctx.Item.(sim.Msg)
	if !ok {
		return
	}

	t.Logger.Log(context.Background(), LevelTrace, ctx.Pos.Name,
		"port", ctx.Domain.(sim.Port).Name(),
		"msg", fmt.Sprintf("%T", msg),
		"src", msg.Meta().Src,
		"dst", msg.Meta().Dst,
	)
}

// RenderMatrix renders a matrix as a bordered table.
func RenderMatrix(title string, m *Matrix) string {
	t := table.NewWriter()
	t.SetTitle(title)

	header := table.Row{""}
	for c := 0; c < m.Cols; c++ {
		header = append(header, fmt.Sprintf("C%d", c))
	}
	t.AppendHeader(header)

	for r := 0; r < m.Rows; r++ {
		row := table.Row{fmt.Sprintf("R%d", r)}
		for c := 0; c < m.Cols; c++ {
			row = append(row, m.At(r, c))
		}
		t.AppendRow(row)
	}

	return t.Render()
}

// RenderVector renders a vector as a one-row table.
func RenderVector(title string, v *Vector) string {
	t := table.NewWriter()
	t.SetTitle(title)

	header := table.Row{}
	row := table.Row{}
	for i := 0; i < v.Size; i++ {
		header = append(header, fmt.Sprintf("X%d", i))
		row = append(row, v.At(i))
	}
	t.AppendHeader(header)
	t.AppendRow(row)

	return t.Render()
}
