// Package influxdb exports generated samples to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: token auth, a ping on
// connect, and the non-blocking batched write API. Client implements
// resource.Recorder so the simulator can hand it every sample it pushes.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//
// Points land in the "fieldsim_samples" measurement, tagged by sensor,
// profile, type and unit, with a single "value" field.
//
// Writes are batched according to batch_size and flush_interval; batch
// failures are reported asynchronously through SetOnError.
package influxdb
