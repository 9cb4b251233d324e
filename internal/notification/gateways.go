// Package notification fans alerts out to escalation contacts across SMS,
// email, real-time push, and dashboard broadcast channels.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ephc-connect/attendance-service/internal/config"
)

// ErrChannelNotConfigured marks a channel skipped for missing credentials.
// Skipping is a non-fatal non-delivery, not a failure.
var ErrChannelNotConfigured = errors.New("channel not configured")

// SMSGateway sends a text message to a phone number.
type SMSGateway interface {
	Send(ctx context.Context, phone, body string) error
	Configured() bool
}

// EmailMessage is one outbound email.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailGateway sends an email message.
type EmailGateway interface {
	Send(ctx context.Context, msg EmailMessage) error
	Configured() bool
}

// newGatewayBreaker builds the circuit breaker protecting an outbound
// gateway. The breaker opens after consecutive failures so a dead gateway
// stops consuming the per-channel timeout budget on every dispatch.
func newGatewayBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// httpSMSGateway posts messages to a Twilio-style REST endpoint.
type httpSMSGateway struct {
	cfg     config.GatewayConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewSMSGateway builds the SMS gateway. With missing credentials it stays
// constructible and reports unconfigured so the dispatcher skips it cleanly.
func NewSMSGateway(cfg config.GatewayConfig, logger *zap.Logger) SMSGateway {
	return &httpSMSGateway{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: newGatewayBreaker("sms-gateway", logger),
	}
}

func (g *httpSMSGateway) Configured() bool {
	return g.cfg.SMSConfigured()
}

func (g *httpSMSGateway) Send(ctx context.Context, phone, body string) error {
	if !g.Configured() {
		return ErrChannelNotConfigured
	}

	form := url.Values{}
	form.Set("From", g.cfg.SMSFrom)
	form.Set("To", phone)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json",
		strings.TrimRight(g.cfg.SMSEndpoint, "/"), g.cfg.SMSAccountSID)

	_, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(g.cfg.SMSAccountSID, g.cfg.SMSAuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, snippet)
		}
		return nil, nil
	})
	return err
}

// httpEmailGateway posts messages to a SendGrid-style JSON endpoint.
type httpEmailGateway struct {
	cfg     config.GatewayConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewEmailGateway builds the email gateway.
func NewEmailGateway(cfg config.GatewayConfig, logger *zap.Logger) EmailGateway {
	return &httpEmailGateway{
		cfg:     cfg,
		client:  &http.Client{},
		breaker: newGatewayBreaker("email-gateway", logger),
	}
}

func (g *httpEmailGateway) Configured() bool {
	return g.cfg.EmailConfigured()
}

func (g *httpEmailGateway) Send(ctx context.Context, msg EmailMessage) error {
	if !g.Configured() {
		return ErrChannelNotConfigured
	}

	payload := map[string]any{
		"personalizations": []map[string]any{{
			"to": []map[string]string{{"email": msg.To, "name": msg.ToName}},
		}},
		"from":    map[string]string{"email": g.cfg.EmailFrom},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": msg.TextBody},
			{"type": "text/html", "value": msg.HTMLBody},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.EmailEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.EmailAPIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("email gateway status %d: %s", resp.StatusCode, snippet)
		}
		return nil, nil
	})
	return err
}
