// Package telemetry connects the batch lifecycle and the operator session
// to the site transports: MQTT for dryer tiles, batch events and kiosk
// activity, and InfluxDB for reading and batch time series.
package telemetry
