// Package rolling holds the bounded measurement window and the statistics
// derived from it.
package rolling

import (
	"sync"

	"github.com/Resinat/Dashgate/internal/model"
)

// DefaultCapacity is the number of points retained by the rolling window.
const DefaultCapacity = 200

// Buffer is a fixed-capacity FIFO ring of measurement points.
// Append, Clear and Snapshot are serialized by a single mutex so the length
// never exceeds the capacity, even transiently.
type Buffer struct {
	mu     sync.Mutex
	points []model.MeasurementPoint
	head   int // index of the oldest point
	count  int
	cap    int
}

// NewBuffer creates a buffer with the given capacity.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		points: make([]model.MeasurementPoint, capacity),
		cap:    capacity,
	}
}

// Append inserts p at the tail, evicting the oldest point when full.
func (b *Buffer) Append(p model.MeasurementPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tail := (b.head + b.count) % b.cap
	b.points[tail] = p
	if b.count < b.cap {
		b.count++
		return
	}
	b.head = (b.head + 1) % b.cap
}

// Snapshot returns a copy of the buffered points, oldest first.
func (b *Buffer) Snapshot() []model.MeasurementPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.MeasurementPoint, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.points[(b.head+i)%b.cap]
	}
	return out
}

// Clear drops every buffered point.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.points)
	b.head = 0
	b.count = 0
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the maximum number of retained points.
func (b *Buffer) Capacity() int {
	return b.cap
}
