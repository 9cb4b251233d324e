package notification

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/observability"
	"github.com/ephc-connect/attendance-service/internal/realtime"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

// DispatchReport summarizes one dispatch pass.
type DispatchReport struct {
	AlertID    string
	Recipients int
	// Deliveries counts successful per-recipient channel attempts
	// (sms/email/push); the dashboard broadcast is tracked separately.
	Deliveries    int
	ChannelErrors int
	BroadcastOK   bool
	FinalStatus   domain.AlertStatus
	Passes        int
}

// Dispatcher fans an alert out to every recipient across the configured
// channels. Channel attempts are isolated: one channel's failure never
// stops the others and never fails the overall dispatch.
type Dispatcher struct {
	alerts   repository.AlertRepository
	sms      SMSGateway
	email    EmailGateway
	realtime realtime.Publisher
	cfg      config.NotificationConfig
	logger   *zap.Logger
	metrics  *observability.Metrics

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewDispatcher constructs the dispatcher. Gateways and the realtime
// publisher are injected so tests can substitute fakes.
func NewDispatcher(
	alerts repository.AlertRepository,
	sms SMSGateway,
	email EmailGateway,
	rt realtime.Publisher,
	cfg config.NotificationConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		alerts:   alerts,
		sms:      sms,
		email:    email,
		realtime: rt,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sleep:    time.Sleep,
	}
}

// Dispatch runs one dispatch pass: every recipient, every applicable
// channel, bounded fan-out. The alert transitions PENDING -> SENT once the
// pass has been attempted for all recipients; "sent" means attempted, not
// delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.Alert) (*DispatchReport, error) {
	report := &DispatchReport{AlertID: alert.ID, Recipients: len(alert.Recipients)}

	var deliveries, channelErrors atomic.Int64

	group := new(errgroup.Group)
	group.SetLimit(d.cfg.MaxConcurrentRecipients)
	for i := range alert.Recipients {
		rcpt := &alert.Recipients[i]
		group.Go(func() error {
			delivered, failed := d.notifyRecipient(ctx, alert, rcpt)
			deliveries.Add(int64(delivered))
			channelErrors.Add(int64(failed))
			return nil
		})
	}
	_ = group.Wait()

	report.Deliveries = int(deliveries.Load())
	report.ChannelErrors = int(channelErrors.Load())

	// Dashboard broadcast announces the alert regardless of per-recipient
	// outcomes.
	if err := d.realtime.Broadcast(ctx, DashboardPayload(alert)); err == nil {
		report.BroadcastOK = true
		d.metrics.RecordChannel("dashboard", true)
		d.markDashboardDelivered(ctx, alert)
	} else {
		d.metrics.RecordChannel("dashboard", false)
	}

	if alert.Status == domain.AlertPending {
		now := time.Now()
		alert.Status = domain.AlertSent
		alert.SentAt = &now
	}
	if alert.Status == domain.AlertSent && alert.DeliveredEverywhere() {
		alert.Status = domain.AlertDelivered
	}
	if err := d.alerts.UpdateStatus(ctx, alert); err != nil {
		return report, err
	}

	report.FinalStatus = alert.Status
	if report.Deliveries > 0 {
		d.metrics.RecordDispatchPass("delivered")
	} else {
		d.metrics.RecordDispatchPass("undelivered")
	}
	return report, nil
}

// DispatchWithRetry runs dispatch passes until at least one direct
// channel delivery succeeds or the retry budget is exhausted. A pass with
// zero direct deliveries increments the retry counter; once retryCount
// reaches maxRetries the alert transitions to FAILED only if no channel
// ever reached anyone, the dashboard broadcast included. An alert the
// dashboard carried stays SENT.
func (d *Dispatcher) DispatchWithRetry(ctx context.Context, alert *domain.Alert) (*DispatchReport, error) {
	var last *DispatchReport
	totalDeliveries := 0
	broadcastOK := false
	passes := 0

	for {
		report, err := d.Dispatch(ctx, alert)
		passes++
		if report != nil {
			report.Passes = passes
			last = report
			totalDeliveries += report.Deliveries
			broadcastOK = broadcastOK || report.BroadcastOK
		}
		if err != nil {
			return last, err
		}
		if totalDeliveries > 0 || alert.RetriesExhausted() {
			break
		}

		count, err := d.alerts.IncrementRetry(ctx, alert.ID)
		if err != nil {
			return last, err
		}
		alert.RetryCount = count
		if alert.RetriesExhausted() {
			break
		}
		d.sleep(time.Duration(count) * time.Second)
	}

	if totalDeliveries == 0 && !broadcastOK && alert.RetriesExhausted() && domain.CanTransition(alert.Status, domain.AlertFailed) {
		alert.Status = domain.AlertFailed
		if err := d.alerts.UpdateStatus(ctx, alert); err != nil {
			return last, err
		}
		if last != nil {
			last.FinalStatus = alert.Status
		}
		d.metrics.RecordDispatchPass("failed")
	}
	return last, nil
}

// notifyRecipient attempts sms, email, and push in parallel for one
// recipient, then persists the delivered flags. Returns successful and
// failed channel attempt counts.
func (d *Dispatcher) notifyRecipient(ctx context.Context, alert *domain.Alert, rcpt *domain.AlertRecipient) (int, int) {
	type attempt struct {
		channel string
		run     func(context.Context) (bool, error)
	}

	attempts := []attempt{}
	if rcpt.Phone != "" {
		attempts = append(attempts, attempt{"sms", func(cctx context.Context) (bool, error) {
			if err := d.sms.Send(cctx, rcpt.Phone, SMSBody(alert)); err != nil {
				return false, err
			}
			return true, nil
		}})
	}
	if rcpt.Email != "" {
		attempts = append(attempts, attempt{"email", func(cctx context.Context) (bool, error) {
			err := d.email.Send(cctx, EmailMessage{
				To:       rcpt.Email,
				ToName:   rcpt.Name,
				Subject:  EmailSubject(alert),
				TextBody: EmailText(alert, rcpt.Name),
				HTMLBody: EmailHTML(alert, rcpt.Name),
			})
			if err != nil {
				return false, err
			}
			return true, nil
		}})
	}
	attempts = append(attempts, attempt{"push", func(cctx context.Context) (bool, error) {
		return d.realtime.PublishToRecipient(cctx, rcpt.ID, PushPayload(alert))
	}})

	results := make([]bool, len(attempts))
	failures := make([]bool, len(attempts))

	channelGroup := new(errgroup.Group)
	for i, att := range attempts {
		i, att := i, att
		channelGroup.Go(func() error {
			// In-flight attempts run to completion even when the
			// enclosing request is cancelled, so partial delivery is
			// still recorded accurately.
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ChannelTimeout())
			defer cancel()

			ok, err := att.run(cctx)
			switch {
			case err == nil && ok:
				results[i] = true
				d.metrics.RecordChannel(att.channel, true)
			case errors.Is(err, ErrChannelNotConfigured):
				// Skipped cleanly; neither delivered nor failed.
				d.logger.Debug("channel skipped",
					zap.String("channel", att.channel),
					zap.String("alert_id", alert.ID))
			default:
				failures[i] = true
				d.metrics.RecordChannel(att.channel, false)
				d.logger.Warn("channel attempt failed",
					zap.String("channel", att.channel),
					zap.String("alert_id", alert.ID),
					zap.String("recipient_id", rcpt.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = channelGroup.Wait()

	delivered, failed := 0, 0
	for i, att := range attempts {
		if results[i] {
			delivered++
		}
		if failures[i] {
			failed++
		}
		switch att.channel {
		case "sms":
			rcpt.Delivered.SMS = results[i]
		case "email":
			rcpt.Delivered.Email = results[i]
		case "push":
			rcpt.Delivered.Push = results[i]
		}
	}

	if err := d.alerts.UpdateRecipientFlags(ctx, alert.ID, rcpt.ID, rcpt.Delivered); err != nil {
		d.logger.Warn("failed to persist recipient flags",
			zap.String("alert_id", alert.ID),
			zap.String("recipient_id", rcpt.ID),
			zap.Error(err))
	}
	return delivered, failed
}

func (d *Dispatcher) markDashboardDelivered(ctx context.Context, alert *domain.Alert) {
	for i := range alert.Recipients {
		rcpt := &alert.Recipients[i]
		rcpt.Delivered.Dashboard = true
		if err := d.alerts.UpdateRecipientFlags(ctx, alert.ID, rcpt.ID, rcpt.Delivered); err != nil {
			d.logger.Warn("failed to persist dashboard flag",
				zap.String("alert_id", alert.ID),
				zap.String("recipient_id", rcpt.ID),
				zap.Error(err))
		}
	}
}
