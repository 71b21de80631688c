// Package metrics turns the simulation's per-tick output into the records
// and summaries the evaluation stage consumes. Records are identical in
// shape for every controller so runs stay directly comparable.
package metrics

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"greenwave/internal/models"
	"greenwave/internal/sim"
)

// RunInfo identifies the run a recorder samples for.
type RunInfo struct {
	ID         string
	Job        string
	Controller models.ControllerKind
	Index      int
	Seed       uint64
}

// Recorder accumulates one run's metric records, one per intersection per
// tick, and reduces them to a summary. It is append-only: finalizing after a
// cancelled run keeps every tick recorded up to that point.
type Recorder struct {
	info      RunInfo
	startedAt time.Time

	records       []models.MetricRecord
	cumWait       map[string]int64
	cumThroughput map[string]int64

	exited  int64
	dropped int64
}

// NewRecorder prepares a recorder for one run.
func NewRecorder(info RunInfo) *Recorder {
	return &Recorder{
		info:          info,
		startedAt:     time.Now(),
		cumWait:       make(map[string]int64),
		cumThroughput: make(map[string]int64),
	}
}

// Record appends one metric record per intersection for the tick the stats
// describe. Every vehicle still queued at the end of the tick is charged one
// tick of waiting, so an intersection's cumulative wait is the vehicle-ticks
// spent in its queues.
func (r *Recorder) Record(stats sim.TickStats) {
	for _, it := range stats.Intersections {
		r.cumWait[it.ID] += int64(it.QueueLen)
		r.cumThroughput[it.ID] += int64(it.Departed)
		r.records = append(r.records, models.MetricRecord{
			RunID:                r.info.ID,
			Controller:           r.info.Controller,
			Tick:                 stats.Tick,
			IntersectionID:       it.ID,
			QueueLen:             it.QueueLen,
			CumulativeWait:       r.cumWait[it.ID],
			CumulativeThroughput: r.cumThroughput[it.ID],
		})
	}
	r.exited += int64(stats.Exited)
	r.dropped += int64(stats.Dropped)
}

// Records returns everything recorded so far, oldest first.
func (r *Recorder) Records() []models.MetricRecord { return r.records }

// Finalize reduces the collected records to a run summary. Safe after any
// number of ticks, including zero. Mean wait is queued vehicle-ticks per
// vehicle that cleared the network; vehicles still in the system at the end
// contribute wait but not a count.
func (r *Recorder) Finalize(partial bool, learningFaults int64) models.RunSummary {
	s := models.RunSummary{
		RunID:           r.info.ID,
		Job:             r.info.Job,
		Controller:      r.info.Controller,
		RunIndex:        r.info.Index,
		Seed:            r.info.Seed,
		VehiclesPassed:  r.exited,
		DroppedVehicles: r.dropped,
		LearningFaults:  learningFaults,
		Partial:         partial,
		StartedAt:       r.startedAt,
		EndedAt:         time.Now(),
	}
	if len(r.records) == 0 {
		return s
	}

	s.Ticks = r.records[len(r.records)-1].Tick
	queueLens := make([]float64, len(r.records))
	for i, rec := range r.records {
		queueLens[i] = float64(rec.QueueLen)
		if rec.QueueLen > s.MaxQueue {
			s.MaxQueue = rec.QueueLen
		}
	}
	s.MeanQueue = stat.Mean(queueLens, nil)

	for _, w := range r.cumWait {
		s.TotalWait += w
	}
	for _, d := range r.cumThroughput {
		s.TotalThroughput += d
	}
	if s.VehiclesPassed > 0 {
		s.MeanWait = float64(s.TotalWait) / float64(s.VehiclesPassed)
	}
	return s
}
