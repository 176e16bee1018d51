// Package sampler synthesises periodic sensor readings.
//
// Each tick draws a uniform value. If it does not exceed the threshold the
// tick is idle. Otherwise a sensor is picked uniformly, a raw value is
// drawn from the sensor's profile range, the sensor's measurement
// container is ensured, and the encoded reading is enqueued for push.
// Recorders (archive, telemetry export) receive the sample through a
// bounded buffer drained by RunRecorders, so slow storage never delays a
// tick.
//
// The random source is injectable so tests can script every draw.
package sampler
