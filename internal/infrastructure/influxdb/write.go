package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading = "drying_reading"
	MeasurementBatch   = "drying_batch"
)

// ReadingSample is one moisture reading.
type ReadingSample struct {
	Dryer          int
	BatchCode      string
	Moisture       float64
	Temperature    *float64
	TargetMoisture float64
	At             time.Time
}

// BatchSummary is the outcome of a finished batch.
type BatchSummary struct {
	Dryer           int
	BatchCode       string
	Status          string
	InitialMoisture float64
	TargetMoisture  float64
	FinalMoisture   *float64
	TotalHours      *float64
	At              time.Time
}

// ReadingPoint builds the drying_reading point for s.
func ReadingPoint(s ReadingSample) *write.Point {
	fields := map[string]any{
		"moisture":        s.Moisture,
		"target_moisture": s.TargetMoisture,
	}
	if s.Temperature != nil {
		fields["temperature"] = *s.Temperature
	}

	return write.NewPoint(MeasurementReading, map[string]string{
		"dryer":      strconv.Itoa(s.Dryer),
		"batch_code": s.BatchCode,
	}, fields, s.At)
}

// BatchPoint builds the drying_batch point for s.
func BatchPoint(s BatchSummary) *write.Point {
	fields := map[string]any{
		"initial_moisture": s.InitialMoisture,
		"target_moisture":  s.TargetMoisture,
	}
	if s.FinalMoisture != nil {
		fields["final_moisture"] = *s.FinalMoisture
	}
	if s.TotalHours != nil {
		fields["total_hours"] = *s.TotalHours
	}

	return write.NewPoint(MeasurementBatch, map[string]string{
		"dryer":      strconv.Itoa(s.Dryer),
		"batch_code": s.BatchCode,
		"status":     s.Status,
	}, fields, s.At)
}

// WriteReading queues a reading point. It does nothing when disconnected.
func (c *Client) WriteReading(s ReadingSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(ReadingPoint(s))
}

// WriteBatch queues a batch outcome point.
func (c *Client) WriteBatch(s BatchSummary) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(BatchPoint(s))
}

// WritePoint queues a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
