// Package telemetry records decoded datapoint values and update outcomes
// as time-series data in InfluxDB.
//
// Writes are non-blocking and batched by the underlying client library.
// When telemetry is disabled in configuration, Connect returns ErrDisabled
// and callers run without a client.
//
// Usage:
//
//	client, err := telemetry.Connect(cfg.InfluxDB)
//	if errors.Is(err, telemetry.ErrDisabled) {
//	    client = nil // telemetry off
//	} else if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.WriteDatapoint("sensor-01", 1, "measure_temperature", 21.5)
package telemetry
