// Package worker moves alert dispatch and real-time fan-out off the
// request path. Handlers subscribed to the event dispatcher only enqueue;
// a small pool of goroutines does the slow outbound work.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/events"
	"github.com/ephc-connect/attendance-service/internal/notification"
	"github.com/ephc-connect/attendance-service/internal/realtime"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

// DispatchWorker consumes attendance and alert events asynchronously.
type DispatchWorker struct {
	alerts     repository.AlertRepository
	dispatcher *notification.Dispatcher
	realtime   realtime.Publisher
	logger     *zap.Logger

	jobs chan events.Event
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatchWorker constructs the worker with a bounded queue.
func NewDispatchWorker(
	alerts repository.AlertRepository,
	dispatcher *notification.Dispatcher,
	rt realtime.Publisher,
	logger *zap.Logger,
	queueSize int,
) *DispatchWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &DispatchWorker{
		alerts:     alerts,
		dispatcher: dispatcher,
		realtime:   rt,
		logger:     logger,
		jobs:       make(chan events.Event, queueSize),
	}
}

// Register subscribes the worker to the event dispatcher. Handlers only
// enqueue so publishers never block on outbound gateways.
func (w *DispatchWorker) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventCheckInRecorded, w.enqueue)
	dispatcher.Subscribe(events.EventCheckOutRecorded, w.enqueue)
	dispatcher.Subscribe(events.EventAlertCreated, w.enqueue)
}

// Start launches the consumer goroutines.
func (w *DispatchWorker) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for event := range w.jobs {
				w.handle(ctx, event)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (w *DispatchWorker) Stop() {
	w.once.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

func (w *DispatchWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.jobs <- event:
	default:
		w.logger.Warn("worker queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("facility_id", event.FacilityID))
	}
	return nil
}

func (w *DispatchWorker) handle(ctx context.Context, event events.Event) {
	switch event.Type {
	case events.EventAlertCreated:
		w.handleAlertCreated(ctx, event)
	case events.EventCheckInRecorded, events.EventCheckOutRecorded:
		if err := w.realtime.Broadcast(ctx, event); err != nil {
			w.logger.Warn("attendance broadcast failed",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

func (w *DispatchWorker) handleAlertCreated(ctx context.Context, event events.Event) {
	payload, ok := event.Payload.(events.AlertCreatedPayload)
	if !ok {
		w.logger.Error("unexpected alert event payload", zap.Any("payload", event.Payload))
		return
	}

	alert, err := w.alerts.GetByID(ctx, payload.AlertID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			w.logger.Warn("alert vanished before dispatch", zap.String("alert_id", payload.AlertID))
			return
		}
		w.logger.Error("failed to load alert for dispatch",
			zap.String("alert_id", payload.AlertID), zap.Error(err))
		return
	}

	report, err := w.dispatcher.DispatchWithRetry(ctx, alert)
	if err != nil {
		w.logger.Error("alert dispatch failed",
			zap.String("alert_id", payload.AlertID), zap.Error(err))
		return
	}
	w.logger.Info("alert dispatched",
		zap.String("alert_id", report.AlertID),
		zap.Int("recipients", report.Recipients),
		zap.Int("deliveries", report.Deliveries),
		zap.Int("passes", report.Passes),
		zap.String("final_status", string(report.FinalStatus)))
}
