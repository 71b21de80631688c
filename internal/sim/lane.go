package sim

import (
	"fmt"

	"greenwave/internal/models"
)

// Lane is a bounded FIFO approach queue. The head of the queue is the vehicle
// at the stop line.
type Lane struct {
	id       string
	heading  models.Direction
	capacity int
	queue    []*Vehicle
}

// NewLane creates an empty lane for one approach of an intersection.
func NewLane(intersectionID string, heading models.Direction, capacity int) *Lane {
	return &Lane{
		id:       fmt.Sprintf("%s:%s", intersectionID, heading),
		heading:  heading,
		capacity: capacity,
	}
}

// ID returns the "<intersection>:<direction>" lane identifier.
func (l *Lane) ID() string { return l.id }

// Heading returns the direction of travel of traffic in this lane.
func (l *Lane) Heading() models.Direction { return l.heading }

// Len returns the number of queued vehicles.
func (l *Lane) Len() int { return len(l.queue) }

// Capacity returns the maximum number of vehicles the lane can hold.
func (l *Lane) Capacity() int { return l.capacity }

// Full reports whether the lane cannot accept another vehicle.
func (l *Lane) Full() bool { return len(l.queue) >= l.capacity }

// Head returns the vehicle at the stop line, or nil if the lane is empty.
func (l *Lane) Head() *Vehicle {
	if len(l.queue) == 0 {
		return nil
	}
	return l.queue[0]
}

// Enqueue appends a vehicle at the back of the lane. It returns
// models.ErrCapacityExceeded when the lane is full; the vehicle is not
// admitted in that case.
func (l *Lane) Enqueue(v *Vehicle, tick int64) error {
	if l.Full() {
		return fmt.Errorf("lane %s: %w", l.id, models.ErrCapacityExceeded)
	}
	l.push(v, tick)
	return nil
}

// push admits a vehicle without a capacity check. Callers must have checked
// Full on the same tick.
func (l *Lane) push(v *Vehicle, tick int64) {
	v.EnqueuedAt = tick
	l.queue = append(l.queue, v)
}

// Dequeue removes and returns the vehicle at the stop line, or nil if the
// lane is empty.
func (l *Lane) Dequeue() *Vehicle {
	if len(l.queue) == 0 {
		return nil
	}
	v := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return v
}

// HeadWait returns the ticks the stop-line vehicle has waited, or 0 when the
// lane is empty.
func (l *Lane) HeadWait(tick int64) int64 {
	v := l.Head()
	if v == nil {
		return 0
	}
	return v.Wait(tick)
}
