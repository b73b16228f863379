package monitor

import (
	"context"
	"time"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/notification"
	"production-tracker-backend/internal/store"
)

// Recorder counts the events raised by a scan.
type Recorder interface {
	ObserveMonitorEvent(event string)
}

// Service periodically scans product objects for expired quarantines and
// overdue stays and publishes one event per change.
type Service struct {
	cfg   config.MonitorConfig
	store store.Store
	sink  notification.Sink
	rec   Recorder
	log   *logger.Logger
	clock func() time.Time
}

// NewService creates a monitor. rec may be nil.
func NewService(cfg config.MonitorConfig, s store.Store, sink notification.Sink, rec Recorder, log *logger.Logger) *Service {
	if sink == nil {
		sink = notification.Nop{}
	}
	return &Service{
		cfg:   cfg,
		store: s,
		sink:  sink,
		rec:   rec,
		log:   log.With("component", "monitor"),
		clock: time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Run scans once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("monitor is disabled, not starting")
		return
	}
	s.log.Info("starting monitor", "interval", s.cfg.Interval)

	s.scan(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("monitor shutting down")
			return
		case <-timer.C:
			s.scan(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) scan(ctx context.Context) {
	released, overdue, err := s.ScanOnce(ctx)
	if err != nil {
		s.log.Error("monitor scan failed", "error", err)
		return
	}
	if released > 0 || overdue > 0 {
		s.log.Info("monitor scan finished", "released", released, "overdue", overdue)
	}
}

// ScanOnce performs a single pass and returns how many quarantines were
// released and how many units were newly flagged overdue.
func (s *Service) ScanOnce(ctx context.Context) (released, overdue int, err error) {
	now := s.clock().UTC()

	expired, err := s.store.ExpiredQuarantines(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	for i := range expired {
		obj := &expired[i]
		ok, err := s.store.ReleaseQuarantine(ctx, obj.ID, now)
		if err != nil {
			return released, overdue, err
		}
		if !ok {
			continue
		}
		released++
		s.publish(ctx, notification.TopicQuarantineReleased, obj.CurrentProcessID, obj.SerialNumber, now)
	}

	late, err := s.store.OverdueObjects(ctx, now)
	if err != nil {
		return released, overdue, err
	}
	for i := range late {
		obj := &late[i]
		ok, err := s.store.MarkOverdue(ctx, obj.ID, now)
		if err != nil {
			return released, overdue, err
		}
		if !ok {
			continue
		}
		overdue++
		s.publish(ctx, notification.TopicObjectOverdue, obj.CurrentProcessID, obj.SerialNumber, now)
	}
	return released, overdue, nil
}

func (s *Service) publish(ctx context.Context, topic string, processID *int64, serial string, at time.Time) {
	ev := notification.Event{Topic: topic, SerialNumber: serial, OccurredAt: at}
	if processID != nil {
		ev.ProcessID = *processID
	}
	if s.rec != nil {
		s.rec.ObserveMonitorEvent(topic)
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.log.Warn("monitor notification failed", "topic", topic, "serial", serial, "error", err)
	}
}
