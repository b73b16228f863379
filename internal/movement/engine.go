package movement

import (
	"context"
	"errors"
	"time"

	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/notification"
	"production-tracker-backend/internal/store"
)

// Recorder receives per-request outcome metrics.
type Recorder interface {
	ObserveMovement(movementType, outcome string, elapsed time.Duration)
	ObserveNotification(sink, outcome string)
}

// Outcome labels passed to the Recorder.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeConflict = "conflict"
	outcomeError    = "error"
)

// Engine validates and applies movement requests. Each request runs in one
// transaction; notifications go out only after it commits.
type Engine struct {
	store store.Store
	sink  notification.Sink
	rec   Recorder
	log   *logger.Logger
	clock func() time.Time
}

// NewEngine creates an engine. sink and rec may be nil.
func NewEngine(s store.Store, sink notification.Sink, rec Recorder, log *logger.Logger) *Engine {
	if sink == nil {
		sink = notification.Nop{}
	}
	return &Engine{
		store: s,
		sink:  sink,
		rec:   rec,
		log:   log.With("component", "movement"),
		clock: time.Now,
	}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// HandleMovement validates req and, when admissible, applies it atomically.
// Validation failures are returned as *Error; storage failures wrap
// ErrInfrastructure or ErrConflict.
func (e *Engine) HandleMovement(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	req = req.normalized()
	now := e.clock().UTC()

	var details *Details
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		v := &validator{s: tx, now: now}
		t, err := v.validate(ctx, req)
		if err != nil {
			return err
		}

		a := newApplier(tx, now, req.Actor, t, req.Type)
		switch req.Type {
		case model.MovementMove:
			err = a.move(ctx, t)
		case model.MovementReceive:
			err = a.receive(ctx, t, req.PrinterName)
		case model.MovementCheck:
			result := false
			if req.Result != nil {
				result = *req.Result
			}
			err = a.check(ctx, t, result)
		case model.MovementTrash:
			err = a.trash(ctx, t)
		}
		if err != nil {
			return err
		}
		details = a.details
		return nil
	})
	err = classify(err)
	e.observe(req.Type, err, time.Since(started))

	if err != nil {
		if verr, ok := AsError(err); ok {
			e.log.Info("movement rejected", "type", req.Type, "full_sn", req.FullSN, "code", verr.Code, "actor", req.Actor)
		} else if store.IsCanceled(err) {
			e.log.Warn("movement canceled", "type", req.Type, "full_sn", req.FullSN)
		} else {
			e.log.Error("movement failed", "type", req.Type, "full_sn", req.FullSN, "error", err)
		}
		return nil, err
	}

	e.log.Info("movement applied", "type", req.Type, "serial", details.SerialNumber,
		"process", details.ProcessLabel, "place", details.PlaceName, "actor", req.Actor, "affected", len(details.Affected))
	e.publish(ctx, details, now)
	return &Result{Status: "ok", Details: *details}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	if store.IsConflict(err) {
		return errors.Join(ErrConflict, err)
	}
	return errors.Join(ErrInfrastructure, err)
}

func (e *Engine) observe(typ model.MovementType, err error, elapsed time.Duration) {
	if e.rec == nil {
		return
	}
	label := string(typ)
	if !typ.Valid() {
		label = "unknown"
	}
	outcome := outcomeAccepted
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		outcome = outcomeConflict
	case errors.Is(err, ErrInfrastructure):
		outcome = outcomeError
	default:
		outcome = outcomeRejected
	}
	e.rec.ObserveMovement(label, outcome, elapsed)
}

// publish is best-effort; a failed publish never affects the committed change.
func (e *Engine) publish(ctx context.Context, d *Details, at time.Time) {
	err := e.sink.Publish(ctx, notification.Event{
		Topic:        notification.TopicMovement,
		ProcessID:    d.ProcessID,
		SerialNumber: d.SerialNumber,
		Payload:      d,
		OccurredAt:   at,
	})
	outcome := notification.OutcomeDelivered
	if err != nil {
		outcome = notification.OutcomeFailed
		e.log.Warn("movement notification failed", "serial", d.SerialNumber, "error", err)
	}
	if e.rec != nil {
		e.rec.ObserveNotification("engine", outcome)
	}
}
