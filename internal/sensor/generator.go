// Package sensor produces synthetic measurement points.
package sensor

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Resinat/Dashgate/internal/model"
	"github.com/Resinat/Dashgate/internal/rolling"
)

const (
	// MinValue and MaxValue bound every generated reading.
	MinValue = 0.28
	MaxValue = 0.36

	// TimestampLayout renders wall-clock time with millisecond precision.
	TimestampLayout = "15:04:05.000"

	DefaultSensorID = "01"
)

// Source yields uniformly distributed values in [0, 1).
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Generator creates measurement points. Safe for concurrent use.
type Generator struct {
	sensorID string
	now      func() time.Time

	mu  sync.Mutex
	src Source
}

// Option customizes a Generator.
type Option func(*Generator)

// WithSource replaces the randomness source.
func WithSource(src Source) Option {
	return func(g *Generator) { g.src = src }
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator for the given sensor id.
func NewGenerator(sensorID string, opts ...Option) *Generator {
	if sensorID == "" {
		sensorID = DefaultSensorID
	}
	g := &Generator{
		sensorID: sensorID,
		now:      time.Now,
		src:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh reading in [MinValue, MaxValue], rounded to three
// decimal digits.
func (g *Generator) Next() model.MeasurementPoint {
	g.mu.Lock()
	u := g.src.Float64()
	g.mu.Unlock()

	value := rolling.Round(MinValue + u*(MaxValue-MinValue))
	return model.MeasurementPoint{
		SensorID:  g.sensorID,
		Value:     value,
		Timestamp: g.now().Format(TimestampLayout),
	}
}
