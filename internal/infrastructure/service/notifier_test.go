package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/pkg/circuitbreaker"
)

func TestWebhookNotifier_PostsAward(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody achievement.Award

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookNotifierConfig{BaseURL: srv.URL, AuthToken: "secret"})
	award := achievement.Award{UserID: 1, AchievementID: 7, Title: "First Words", Points: 10}

	require.NoError(t, n.NotifyAward(context.Background(), award))
	assert.Equal(t, "/achievement-awarded", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, award.Title, gotBody.Title)
}

func TestWebhookNotifier_ServerErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookNotifierConfig{BaseURL: srv.URL})
	err := n.NotifyStreak(context.Background(), notification.StreakNotice{UserID: 1, StreakDays: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotificationFailed)
}

func TestWebhookNotifier_BreakerOpensAfterFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "test",
		FailureThreshold: 2,
		Timeout:          time.Minute,
	})
	n := NewWebhookNotifier(WebhookNotifierConfig{BaseURL: srv.URL, Breaker: breaker})

	for i := 0; i < 5; i++ {
		_ = n.NotifyStreak(context.Background(), notification.StreakNotice{UserID: 1})
	}

	// After the breaker opens, requests stop reaching the server.
	assert.Equal(t, 2, calls)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
}
