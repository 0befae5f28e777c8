// Package service contains outbound adapters to external systems.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/pkg/circuitbreaker"
)

// WebhookNotifierConfig configures the outbound notifier.
type WebhookNotifierConfig struct {
	// BaseURL is the real-time notifier endpoint, e.g.
	// "https://notifier.internal/hooks".
	BaseURL string

	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string

	// Timeout bounds one delivery attempt.
	Timeout time.Duration

	// Breaker protects the notifier endpoint. Nil gets a default.
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
}

// WebhookNotifier delivers notices to the external real-time notifier
// over HTTP, behind a circuit breaker. Delivery is best-effort by
// contract; callers treat failures as log-and-continue.
type WebhookNotifier struct {
	baseURL   string
	authToken string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookNotifierConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.New(circuitbreaker.DefaultConfig("notifier"))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebhookNotifier{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   cfg.Breaker,
		logger:    cfg.Logger,
	}
}

// NotifyAward delivers one achievement award.
func (n *WebhookNotifier) NotifyAward(ctx context.Context, award achievement.Award) error {
	return n.post(ctx, "/achievement-awarded", award)
}

// NotifyStreak delivers a streak update.
func (n *WebhookNotifier) NotifyStreak(ctx context.Context, notice notification.StreakNotice) error {
	return n.post(ctx, "/streak-updated", notice)
}

// NotifyStreakAtRisk delivers a streak-expiry reminder.
func (n *WebhookNotifier) NotifyStreakAtRisk(ctx context.Context, notice notification.StreakAtRiskNotice) error {
	return n.post(ctx, "/streak-at-risk", notice)
}

func (n *WebhookNotifier) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notifier: marshal: %w", err)
	}

	err = n.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if n.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+n.authToken)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("notifier: %s returned %d", path, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		n.logger.Warn("notification delivery failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", shared.ErrNotificationFailed, err)
	}
	return nil
}

// NopNotifier discards all notices. Used when no notifier endpoint is
// configured.
type NopNotifier struct{}

func (NopNotifier) NotifyAward(context.Context, achievement.Award) error { return nil }

func (NopNotifier) NotifyStreak(context.Context, notification.StreakNotice) error { return nil }

func (NopNotifier) NotifyStreakAtRisk(context.Context, notification.StreakAtRiskNotice) error {
	return nil
}
