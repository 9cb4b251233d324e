package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/domain"
	"github.com/ephc-connect/attendance-service/internal/repository"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (g *fakeSMS) Send(_ context.Context, phone, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, phone)
	return nil
}

func (g *fakeSMS) Configured() bool { return g.err == nil }

type fakeEmail struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (g *fakeEmail) Send(_ context.Context, msg EmailMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *fakeEmail) Configured() bool { return g.err == nil }

type fakePublisher struct {
	mu           sync.Mutex
	published    []string
	broadcasts   int
	pushOK       bool
	pushErr      error
	broadcastErr error
}

func (p *fakePublisher) PublishToRecipient(_ context.Context, recipientID string, _ any) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushErr != nil {
		return false, p.pushErr
	}
	p.published = append(p.published, recipientID)
	return p.pushOK, nil
}

func (p *fakePublisher) Broadcast(context.Context, any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broadcastErr != nil {
		return p.broadcastErr
	}
	p.broadcasts++
	return nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*domain.Alert
}

func newMemAlertRepo(alerts ...*domain.Alert) *memAlertRepo {
	r := &memAlertRepo{alerts: make(map[string]*domain.Alert)}
	for _, a := range alerts {
		clone := *a
		r.alerts[a.ID] = &clone
	}
	return r
}

func (r *memAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *alert
	r.alerts[alert.ID] = &clone
	return nil
}

func (r *memAlertRepo) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (r *memAlertRepo) GetByAggregationKey(context.Context, string) (*domain.Alert, error) {
	return nil, pgx.ErrNoRows
}

func (r *memAlertRepo) ListWithFilter(context.Context, repository.AlertFilter) ([]domain.Alert, error) {
	return nil, nil
}

func (r *memAlertRepo) UpdateStatus(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[alert.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	*stored = *alert
	return nil
}

func (r *memAlertRepo) UpdateRecipientFlags(_ context.Context, alertID, recipientID string, flags domain.ChannelFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[alertID]
	if !ok {
		return pgx.ErrNoRows
	}
	for i := range stored.Recipients {
		if stored.Recipients[i].ID == recipientID {
			stored.Recipients[i].Delivered = flags
		}
	}
	return nil
}

func (r *memAlertRepo) IncrementRetry(_ context.Context, alertID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[alertID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	stored.RetryCount++
	return stored.RetryCount, nil
}

func (r *memAlertRepo) Stats(context.Context, string, time.Time, time.Time) ([]repository.AlertStat, error) {
	return nil, nil
}

func (r *memAlertRepo) CountSince(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *memAlertRepo) status(t *testing.T, id string) domain.AlertStatus {
	t.Helper()
	a, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func testNotifyCfg() config.NotificationConfig {
	return config.NotificationConfig{
		MaxConcurrentRecipients: 4,
		ChannelTimeoutSeconds:   2,
		MaxDispatchRetries:      3,
		DashboardChannel:        "alerts:dashboard",
		RecipientChannelPrefix:  "alerts:user:",
	}
}

func pendingAlert(recipients ...domain.AlertRecipient) *domain.Alert {
	staffID := "STF-001"
	return &domain.Alert{
		ID:         "alr-1",
		StaffID:    &staffID,
		FacilityID: "FAC-001",
		Type:       domain.AlertLateCheckIn,
		Severity:   domain.SeverityMedium,
		Title:      "Late Check-in Alert",
		Message:    "checked in 45 minutes late",
		Recipients: recipients,
		Status:     domain.AlertPending,
		MaxRetries: 3,
	}
}

func recipient(id string, phone, email string) domain.AlertRecipient {
	return domain.AlertRecipient{ID: id, Name: "Contact " + id, Role: "CENTER_INCHARGE", Phone: phone, Email: email}
}

func newTestDispatcher(repo *memAlertRepo, sms *fakeSMS, email *fakeEmail, pub *fakePublisher) *Dispatcher {
	d := NewDispatcher(repo, sms, email, pub, testNotifyCfg(), zap.NewNop(), nil)
	d.sleep = func(time.Duration) {}
	return d
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("all channels succeed and status reaches DELIVERED", func(t *testing.T) {
		alert := pendingAlert(
			recipient("ESC-1", "+911111111111", "one@example.org"),
			recipient("ESC-2", "+912222222222", "two@example.org"),
			recipient("ESC-3", "", "three@example.org"),
		)
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{}
		email := &fakeEmail{}
		pub := &fakePublisher{pushOK: true}
		d := newTestDispatcher(repo, sms, email, pub)

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 3, report.Recipients)
		// 2 sms + 3 email + 3 push
		require.Equal(t, 8, report.Deliveries)
		require.Zero(t, report.ChannelErrors)
		require.True(t, report.BroadcastOK)
		require.Equal(t, domain.AlertDelivered, report.FinalStatus)
		require.Equal(t, domain.AlertDelivered, repo.status(t, alert.ID))
		require.Len(t, sms.sent, 2)
		require.Len(t, email.sent, 3)
	})

	t.Run("sms outage still delivers email and push and leaves SENT path intact", func(t *testing.T) {
		alert := pendingAlert(
			recipient("ESC-1", "+911111111111", "one@example.org"),
			recipient("ESC-2", "+912222222222", "two@example.org"),
			recipient("ESC-3", "+913333333333", "three@example.org"),
		)
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{err: errors.New("gateway unreachable")}
		email := &fakeEmail{}
		pub := &fakePublisher{pushOK: true}
		d := newTestDispatcher(repo, sms, email, pub)

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 6, report.Deliveries)
		require.Equal(t, 3, report.ChannelErrors)

		stored, err := repo.GetByID(ctx, alert.ID)
		require.NoError(t, err)
		for _, rcpt := range stored.Recipients {
			require.False(t, rcpt.Delivered.SMS)
			require.True(t, rcpt.Delivered.Email)
			require.True(t, rcpt.Delivered.Push)
		}
	})

	t.Run("unconfigured channel is a clean skip, not a failure", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", "one@example.org"))
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{err: ErrChannelNotConfigured}
		email := &fakeEmail{}
		pub := &fakePublisher{pushOK: true}
		d := newTestDispatcher(repo, sms, email, pub)

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 2, report.Deliveries)
		require.Zero(t, report.ChannelErrors)
	})

	t.Run("push without an active subscription is not a delivery", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "", ""))
		repo := newMemAlertRepo(alert)
		d := newTestDispatcher(repo, &fakeSMS{}, &fakeEmail{}, &fakePublisher{pushOK: false})

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.Zero(t, report.Deliveries)
		require.Equal(t, domain.AlertSent, report.FinalStatus)
	})

	t.Run("zero recipients still broadcasts and marks SENT", func(t *testing.T) {
		alert := pendingAlert()
		repo := newMemAlertRepo(alert)
		pub := &fakePublisher{pushOK: true}
		d := newTestDispatcher(repo, &fakeSMS{}, &fakeEmail{}, pub)

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.True(t, report.BroadcastOK)
		require.Equal(t, domain.AlertSent, report.FinalStatus)
		require.Equal(t, 1, pub.broadcasts)
	})

	t.Run("broadcast failure does not fail the dispatch", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", ""))
		repo := newMemAlertRepo(alert)
		pub := &fakePublisher{pushOK: true, broadcastErr: errors.New("redis down")}
		d := newTestDispatcher(repo, &fakeSMS{}, &fakeEmail{}, pub)

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.False(t, report.BroadcastOK)
		require.Equal(t, 2, report.Deliveries)
	})

	t.Run("partial recipient coverage stays SENT not DELIVERED", func(t *testing.T) {
		alert := pendingAlert(
			recipient("ESC-1", "+911111111111", ""),
			recipient("ESC-2", "", ""),
		)
		repo := newMemAlertRepo(alert)
		d := newTestDispatcher(repo, &fakeSMS{}, &fakeEmail{}, &fakePublisher{pushOK: false})

		report, err := d.Dispatch(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 1, report.Deliveries)
		require.Equal(t, domain.AlertSent, report.FinalStatus)
	})
}

func TestDispatchWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("first-pass delivery needs no retries", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", ""))
		repo := newMemAlertRepo(alert)
		d := newTestDispatcher(repo, &fakeSMS{}, &fakeEmail{}, &fakePublisher{pushOK: true})

		report, err := d.DispatchWithRetry(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 1, report.Passes)
		require.Zero(t, alert.RetryCount)
	})

	t.Run("total outage exhausts retries and transitions to FAILED", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", "one@example.org"))
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{err: errors.New("gateway unreachable")}
		email := &fakeEmail{err: errors.New("gateway unreachable")}
		pub := &fakePublisher{pushErr: errors.New("redis down"), broadcastErr: errors.New("redis down")}
		d := newTestDispatcher(repo, sms, email, pub)

		report, err := d.DispatchWithRetry(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 3, report.Passes)
		require.Equal(t, 3, alert.RetryCount)
		require.Equal(t, domain.AlertFailed, report.FinalStatus)
		require.Equal(t, domain.AlertFailed, repo.status(t, alert.ID))
	})

	t.Run("dashboard broadcast keeps exhausted alert out of FAILED", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", "one@example.org"))
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{err: errors.New("gateway unreachable")}
		email := &fakeEmail{err: errors.New("gateway unreachable")}
		pub := &fakePublisher{pushErr: errors.New("redis down")}
		d := newTestDispatcher(repo, sms, email, pub)

		report, err := d.DispatchWithRetry(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 3, report.Passes)
		require.Equal(t, 3, alert.RetryCount)
		require.Zero(t, report.Deliveries)
		require.True(t, report.BroadcastOK)
		require.True(t, alert.Recipients[0].Delivered.Dashboard)
		require.Equal(t, domain.AlertSent, report.FinalStatus)
		require.Equal(t, domain.AlertSent, repo.status(t, alert.ID))
	})

	t.Run("recovery mid-retry stops the loop", func(t *testing.T) {
		alert := pendingAlert(recipient("ESC-1", "+911111111111", ""))
		repo := newMemAlertRepo(alert)
		sms := &fakeSMS{err: errors.New("gateway unreachable")}
		pub := &fakePublisher{pushOK: false}
		d := newTestDispatcher(repo, sms, &fakeEmail{}, pub)

		passes := 0
		d.sleep = func(time.Duration) {
			passes++
			if passes == 2 {
				sms.mu.Lock()
				sms.err = nil
				sms.mu.Unlock()
			}
		}

		report, err := d.DispatchWithRetry(ctx, alert)
		require.NoError(t, err)
		require.Equal(t, 3, report.Passes)
		require.Equal(t, 1, report.Deliveries)
		require.NotEqual(t, domain.AlertFailed, repo.status(t, alert.ID))
	})
}
