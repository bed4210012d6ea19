// Package pe models a single weight-stationary processing element and the
// delay lines that connect neighboring elements.
package pe

import "fmt"

type delayEntry[T any] struct {
	due   uint64
	value T
}

// A DelayLine is a fixed-latency wire segment. A value pushed at cycle t is
// handed to the consumer at cycle t+depth, never earlier and never later.
type DelayLine[T any] struct {
	name     string
	depth    uint64
	cycle    uint64
	consumer func(T)
	queue    []delayEntry[T]
}

// NewDelayLine creates a delay line with the given latency. The consumer is
// invoked from Tick for every value whose delay has elapsed.
func NewDelayLine[T any](name string, depth int, consumer func(T)) *DelayLine[T] {
	if depth < 1 {
		panic(fmt.Sprintf("%s: delay line depth must be at least 1, got %d",
			name, depth))
	}

	if consumer == nil {
		panic(fmt.Sprintf("%s: delay line needs a consumer", name))
	}

	return &DelayLine[T]{
		name:     name,
		depth:    uint64(depth),
		consumer: consumer,
	}
}

// Push enqueues a value. At most one value may enter per cycle; pushing
// faster than the line drains is a wiring bug and panics.
func (l *DelayLine[T]) Push(v T) {
	l.queue = append(l.queue, delayEntry[T]{
		due:   l.cycle + l.depth,
		value: v,
	})

	if uint64(len(l.queue)) > l.depth {
		panic(fmt.Sprintf("%s: delay line overflow, %d values in flight",
			l.name, len(l.queue)))
	}
}

// Tick advances the line by one cycle and delivers every value whose delay
// has elapsed. Entries are due in push order, so the head check suffices.
func (l *DelayLine[T]) Tick() (madeProgress bool) {
	l.cycle++

	for len(l.queue) > 0 && l.queue[0].due <= l.cycle {
		entry := l.queue[0]
		l.queue = l.queue[1:]
		l.consumer(entry.value)
		madeProgress = true
	}

	return madeProgress
}

// Len returns the number of values in flight.
func (l *DelayLine[T]) Len() int {
	return len(l.queue)
}

// Depth returns the latency of the line in cycles.
func (l *DelayLine[T]) Depth() int {
	return int(l.depth)
}
