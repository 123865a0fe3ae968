package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/batch"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds the events waiting to be published.
const defaultQueueSize = 64

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends JSON messages. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MetricsWriter records time series. *influxdb.Client implements it.
type MetricsWriter interface {
	WriteReading(s influxdb.ReadingSample)
	WriteBatch(s influxdb.BatchSummary)
}

// DryerStatus is the retained tile published for a dryer after every
// batch event.
type DryerStatus struct {
	DryerNumber     int          `json:"dryer_number"`
	Status          batch.Status `json:"status"`
	BatchCode       string       `json:"batch_code,omitempty"`
	TargetMoisture  *float64     `json:"target_moisture,omitempty"`
	LatestMoisture  *float64     `json:"latest_moisture,omitempty"`
	StartDryingTime *time.Time   `json:"start_drying_time,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Sink is a batch.EventSink that forwards events to MQTT and InfluxDB
// from its own goroutine. BatchEvent never blocks: when the queue is full
// the event is dropped and logged.
//
// Either transport may be nil.
type Sink struct {
	pub     Publisher
	metrics MetricsWriter
	queue   chan batch.Event

	mu     sync.RWMutex
	logger Logger
}

// NewSink creates a sink. Call Run to start delivering.
func NewSink(pub Publisher, metrics MetricsWriter) *Sink {
	return &Sink{
		pub:     pub,
		metrics: metrics,
		queue:   make(chan batch.Event, defaultQueueSize),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the sink.
func (s *Sink) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *Sink) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// BatchEvent queues e for delivery.
func (s *Sink) BatchEvent(_ context.Context, e batch.Event) {
	select {
	case s.queue <- e:
	default:
		s.log().Warn("telemetry queue full, dropping event", "type", string(e.Type))
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case e := <-s.queue:
			s.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.queue:
					s.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) deliver(e batch.Event) {
	if e.Batch == nil {
		return
	}
	b := e.Batch

	if s.pub != nil {
		topics := mqtt.Topics{}
		event := strings.TrimPrefix(string(e.Type), "batch.")
		if err := s.pub.PublishJSON(topics.BatchEvent(b.BatchCode, event), e, false); err != nil {
			s.log().Warn("publishing batch event failed", "type", string(e.Type), "error", err)
		}
		if err := s.pub.PublishJSON(topics.DryerStatus(b.DryerNumber), tileFor(e), true); err != nil {
			s.log().Warn("publishing dryer status failed", "dryer", b.DryerNumber, "error", err)
		}
	}

	if s.metrics != nil {
		s.record(e)
	}
}

func (s *Sink) record(e batch.Event) {
	b := e.Batch
	if e.Reading != nil && (e.Type == batch.EventReading || e.Type == batch.EventStarted) {
		s.metrics.WriteReading(influxdb.ReadingSample{
			Dryer:          b.DryerNumber,
			BatchCode:      b.BatchCode,
			Moisture:       e.Reading.Moisture,
			Temperature:    e.Reading.Temperature,
			TargetMoisture: b.TargetMoisture,
			At:             e.Reading.RecordedAt,
		})
	}

	if e.Type == batch.EventCompleted || e.Type == batch.EventCancelled {
		at := e.At
		if b.EndDryingTime != nil {
			at = *b.EndDryingTime
		}
		s.metrics.WriteBatch(influxdb.BatchSummary{
			Dryer:           b.DryerNumber,
			BatchCode:       b.BatchCode,
			Status:          string(b.Status),
			InitialMoisture: b.InitialMoisture,
			TargetMoisture:  b.TargetMoisture,
			FinalMoisture:   b.FinalMoisture,
			TotalHours:      b.TotalHours,
			At:              at,
		})
	}
}

// tileFor derives the dryer tile after e. A dryer whose batch finished or
// was deleted is available again.
func tileFor(e batch.Event) DryerStatus {
	b := e.Batch
	tile := DryerStatus{
		DryerNumber: b.DryerNumber,
		Status:      batch.StatusAvailable,
		UpdatedAt:   e.At,
	}
	if !b.Status.Active() || b.Deleted() || e.Type == batch.EventDeleted {
		return tile
	}

	target := b.TargetMoisture
	tile.Status = b.Status
	tile.BatchCode = b.BatchCode
	tile.TargetMoisture = &target
	if b.StartDryingTime != nil {
		t := *b.StartDryingTime
		tile.StartDryingTime = &t
	}
	if e.Reading != nil {
		m := e.Reading.Moisture
		tile.LatestMoisture = &m
	}
	return tile
}
