package sampler

import (
	"context"
	"time"

	"github.com/nerrad567/fieldsim/internal/resource"
)

// DefaultRecordBuffer bounds samples waiting for recorders.
const DefaultRecordBuffer = 256

// recordDrainTimeout bounds recording of buffered samples after shutdown.
const recordDrainTimeout = 2 * time.Second

// offer hands a sample to the recorder loop without blocking the tick.
// A full buffer drops the sample.
func (s *Sampler) offer(sample resource.Sample) {
	if len(s.recorders) == 0 {
		return
	}
	select {
	case s.records <- sample:
	default:
		s.recordDropped.Add(1)
		s.logger.Warn("record buffer full, dropping sample", "sensor", sample.SensorID)
	}
}

// RunRecorders passes enqueued samples to every recorder until ctx is
// cancelled, then records what is still buffered within a short deadline.
// Recorder errors are logged and do not stop the loop.
func (s *Sampler) RunRecorders(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordDrainTimeout)
			defer cancel()
			s.drainRecords(drainCtx)
			return nil
		case sample := <-s.records:
			s.record(ctx, sample)
		}
	}
}

func (s *Sampler) drainRecords(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case sample := <-s.records:
			s.record(ctx, sample)
		default:
			return
		}
	}
	if n := len(s.records); n > 0 {
		s.recordDropped.Add(uint64(n))
		s.logger.Warn("shutdown timeout, discarding buffered samples", "count", n)
	}
}

func (s *Sampler) record(ctx context.Context, sample resource.Sample) {
	for _, r := range s.recorders {
		if err := r.Record(ctx, sample); err != nil {
			s.logger.Warn("recording sample failed", "sensor", sample.SensorID, "error", err)
		}
	}
}
