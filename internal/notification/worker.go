package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
)

// ErrQueueFull is returned when the worker pool cannot accept another event.
var ErrQueueFull = errors.New("notification queue full")

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushMessage is the JSON body delivered to the browser service worker.
type pushMessage struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	Topic        string `json:"topic"`
	SerialNumber string `json:"serial_number"`
	ProcessID    int64  `json:"process_id"`
}

// WorkerPool delivers events to the browsers subscribed to the event's process.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *logger.Logger
	rec     Recorder
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, log *logger.Logger) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.With("service", "WebPush"),
	}
}

// SetRecorder attaches a delivery outcome recorder.
func (wp *WorkerPool) SetRecorder(rec Recorder) { wp.rec = rec }

// SetSender replaces the push transport.
func (wp *WorkerPool) SetSender(sender NotificationSender) { wp.sender = sender }

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", "worker", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, ev)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", "worker", id)
			return
		}
	}
}

// Publish queues ev without blocking the caller.
func (wp *WorkerPool) Publish(_ context.Context, ev Event) error {
	if ev.ProcessID == 0 {
		return nil
	}
	select {
	case wp.jobs <- ev:
		return nil
	default:
		wp.observe(OutcomeDropped)
		return ErrQueueFull
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, ev Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_process_mapping spm ON spm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("spm.process_id = ?", ev.ProcessID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("fetching subscriptions failed", "process_id", ev.ProcessID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("%d", ev.ProcessID)
	var process model.Process
	if err := wp.db.WithContext(ctx).
		Select("label").
		First(&process, ev.ProcessID).Error; err != nil {
		wp.log.Warn("fetching process label failed", "process_id", ev.ProcessID, "error", err)
	} else if process.Label != "" {
		label = process.Label
	}

	payload, err := json.Marshal(pushMessage{
		Title:        label,
		Body:         describe(ev),
		Topic:        ev.Topic,
		SerialNumber: ev.SerialNumber,
		ProcessID:    ev.ProcessID,
	})
	if err != nil {
		wp.log.Error("encoding push message failed", "error", err)
		return
	}

	wp.log.Debug("sending notifications", "count", len(subscriptions), "process_id", ev.ProcessID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func describe(ev Event) string {
	switch ev.Topic {
	case TopicQuarantineReleased:
		return fmt.Sprintf("%s is out of quarantine", ev.SerialNumber)
	case TopicObjectOverdue:
		return fmt.Sprintf("%s exceeded its time in process", ev.SerialNumber)
	default:
		return fmt.Sprintf("%s moved", ev.SerialNumber)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.observe(OutcomeFailed)
		wp.log.Warn("sending notification failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.observe(OutcomeFailed)
		wp.log.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("deleting expired subscription failed", "endpoint", sub.Endpoint, "error", err)
		}
		return
	}
	wp.observe(OutcomeDelivered)
}

func (wp *WorkerPool) observe(outcome string) {
	if wp.rec != nil {
		wp.rec.ObserveNotification("webpush", outcome)
	}
}
