package influxdb

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/fieldsim/internal/resource"
)

// measurementName is the InfluxDB measurement all samples are written to.
const measurementName = "fieldsim_samples"

// Record queues a sample for the next batch. It implements resource.Recorder.
//
// The write is non-blocking; failures surface through SetOnError.
//
// Returns:
//   - error: ErrNotConnected after Close, ctx.Err() if already cancelled
func (c *Client) Record(ctx context.Context, s resource.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.usable() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(samplePoint(s))
	return nil
}

// samplePoint maps a sample onto a line-protocol point.
// Low-cardinality descriptors become tags; the reading is the only field.
func samplePoint(s resource.Sample) *write.Point {
	tags := map[string]string{
		"sensor_id": s.SensorID,
		"type":      s.Type,
	}
	if s.Profile != "" {
		tags["profile"] = s.Profile
	}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}

	return write.NewPoint(
		measurementName,
		tags,
		map[string]interface{}{"value": s.Value},
		s.At,
	)
}
