// Package influxdb records drying telemetry in InfluxDB 2.x.
//
// Two measurements are written:
//   - drying_reading: one point per moisture reading, timestamped with the
//     time the reading was taken
//   - drying_batch: one point when a batch reaches completed or cancelled,
//     carrying its final moisture and drying hours
//
// Writes are non-blocking and batched by the client library; failures are
// reported through the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb
