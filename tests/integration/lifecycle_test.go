//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/scheduler"
	"github.com/bissquit/notification-garden/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateLifecycle(t *testing.T) {
	client := newTestClient()

	resp, err := client.POST("/api/v1/templates", map[string]any{
		"name":    "order_in_app_shipped",
		"type":    "order",
		"channel": "in_app",
		"subject": "Order shipped",
		"content": "Order {{order_id}} is on its way, {{customer_name}}!",
		"variables": map[string]any{
			"order_id":      map[string]any{"type": "string", "required": true},
			"customer_name": map[string]any{"type": "string", "required": true},
		},
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var tpl domain.Template
	testutil.DecodeData(t, resp, &tpl)
	assert.True(t, tpl.IsActive)

	// duplicate name is rejected
	resp, err = client.POST("/api/v1/templates", map[string]any{
		"name":    "order_in_app_shipped",
		"type":    "order",
		"channel": "in_app",
		"content": "x",
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusConflict)

	// preview renders without touching notification state
	resp, err = client.POST("/api/v1/templates/"+tpl.ID+"/preview", map[string]any{
		"variables": map[string]any{
			"order_id":      "ORD-7",
			"customer_name": "Dana",
		},
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var rendered struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	testutil.DecodeData(t, resp, &rendered)
	assert.Equal(t, "Order ORD-7 is on its way, Dana!", rendered.Content)

	// missing required variable fails the preview
	resp, err = client.POST("/api/v1/templates/"+tpl.ID+"/preview", map[string]any{
		"variables": map[string]any{"order_id": "ORD-7"},
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
}

func TestNotificationLifecycle_InApp(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	resp, err := client.POST("/api/v1/notifications", map[string]any{
		"user_id":   userID,
		"type":      "order",
		"channel":   "in_app",
		"recipient": userID,
		"subject":   "Order shipped",
		"content":   "Your order is on its way",
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var n domain.Notification
	testutil.DecodeData(t, resp, &n)

	// in-app delivery is synchronous
	assert.Equal(t, domain.StatusDelivered, n.Status)

	// the inbox row exists
	var count int
	err = testDB.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM inapp_inbox WHERE user_id = $1`, userID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// full audit trail in order
	resp, err = client.GET("/api/v1/notifications/" + n.ID + "/history")
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var entries []domain.HistoryEntry
	testutil.DecodeData(t, resp, &entries)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.EventCreated, entries[0].Event)
	assert.Equal(t, domain.EventSent, entries[1].Event)
	assert.Equal(t, domain.EventDelivered, entries[2].Event)
}

func TestNotification_PreferenceGate(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	promo := map[string]any{
		"user_id":   userID,
		"type":      "promotional",
		"channel":   "in_app",
		"recipient": userID,
		"content":   "Big sale!",
	}

	// promotional is off by default
	resp, err := client.POST("/api/v1/notifications", promo)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusUnprocessableEntity)

	// nothing was persisted
	var count int
	err = testDB.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)

	// opt in and retry
	resp, err = client.PUT("/api/v1/users/"+userID+"/preferences", map[string]any{
		"preferences": []map[string]any{
			{"type": "promotional", "channel": "in_app", "enabled": true},
		},
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	resp, err = client.POST("/api/v1/notifications", promo)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusCreated)
}

func TestNotification_ChannelWithoutProvider(t *testing.T) {
	client := newTestClient()

	// email provider is disabled in the test config
	resp, err := client.POST("/api/v1/notifications", map[string]any{
		"user_id":   "user-1",
		"type":      "order",
		"channel":   "email",
		"recipient": "user@example.com",
		"content":   "hi",
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
}

func TestNotification_CancelPending(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	resp, err := client.POST("/api/v1/notifications", map[string]any{
		"user_id":      userID,
		"type":         "order",
		"channel":      "in_app",
		"recipient":    userID,
		"content":      "later",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var n domain.Notification
	testutil.DecodeData(t, resp, &n)
	require.Equal(t, domain.StatusPending, n.Status)

	resp, err = client.POST("/api/v1/notifications/"+n.ID+"/cancel", nil)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var cancelled domain.Notification
	testutil.DecodeData(t, resp, &cancelled)
	assert.Equal(t, domain.StatusFailed, cancelled.Status)

	// cancelling twice is a state conflict
	resp, err = client.POST("/api/v1/notifications/"+n.ID+"/cancel", nil)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusConflict)
}

func TestScheduledDelivery(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	resp, err := client.POST("/api/v1/schedules", map[string]any{
		"user_id":      userID,
		"type":         "payment",
		"channel":      "in_app",
		"recipient":    userID,
		"content":      "Payment reminder",
		"scheduled_at": time.Now().Add(1200 * time.Millisecond).Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var sched domain.ScheduledNotification
	testutil.DecodeData(t, resp, &sched)
	assert.Equal(t, domain.ScheduleStatusScheduled, sched.Status)

	// not due yet: a forced cycle does nothing
	resp, err = client.POST("/api/v1/schedules/run", nil)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var result scheduler.CycleResult
	testutil.DecodeData(t, resp, &result)
	assert.Zero(t, result.Processed)

	time.Sleep(1500 * time.Millisecond)

	resp, err = client.POST("/api/v1/schedules/run", nil)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.DecodeData(t, resp, &result)
	assert.Equal(t, 1, result.Successful)

	resp, err = client.GET("/api/v1/schedules/" + sched.ID)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.DecodeData(t, resp, &sched)
	assert.Equal(t, domain.ScheduleStatusSent, sched.Status)
	assert.Equal(t, 1, sched.Attempts)

	resp, err = client.GET("/api/v1/notifications/" + sched.NotificationID)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var n domain.Notification
	testutil.DecodeData(t, resp, &n)
	assert.Equal(t, domain.StatusDelivered, n.Status)
}

func TestSchedule_Validation(t *testing.T) {
	client := newTestClient()

	resp, err := client.POST("/api/v1/schedules", map[string]any{
		"user_id":      "user-1",
		"type":         "order",
		"channel":      "in_app",
		"recipient":    "user-1",
		"content":      "too late",
		"scheduled_at": time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
}

func TestSchedule_CancelAndReschedule(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	mkSchedule := func() domain.ScheduledNotification {
		resp, err := client.POST("/api/v1/schedules", map[string]any{
			"user_id":      userID,
			"type":         "system",
			"channel":      "in_app",
			"recipient":    userID,
			"content":      "maintenance window",
			"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
		require.NoError(t, err)
		testutil.RequireStatus(t, resp, http.StatusCreated)

		var sched domain.ScheduledNotification
		testutil.DecodeData(t, resp, &sched)
		return sched
	}

	// reschedule resets the clock
	sched := mkSchedule()
	newTime := time.Now().Add(3 * time.Hour)
	resp, err := client.PATCH("/api/v1/schedules/"+sched.ID, map[string]any{
		"scheduled_at": newTime.Format(time.RFC3339),
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.DecodeData(t, resp, &sched)
	require.NotNil(t, sched.NextAttemptAt)
	assert.WithinDuration(t, newTime, *sched.NextAttemptAt, time.Second)

	// cancel terminates schedule and notification
	sched = mkSchedule()
	resp, err = client.POST("/api/v1/schedules/"+sched.ID+"/cancel", nil)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusNoContent)
	_ = resp.Body.Close()

	resp, err = client.GET("/api/v1/notifications/" + sched.NotificationID)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var n domain.Notification
	testutil.DecodeData(t, resp, &n)
	assert.Equal(t, domain.StatusFailed, n.Status)
}

func TestHistoryQueries(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	for i := 0; i < 3; i++ {
		resp, err := client.POST("/api/v1/notifications", map[string]any{
			"user_id":   userID,
			"type":      "system",
			"channel":   "in_app",
			"recipient": userID,
			"content":   fmt.Sprintf("notice %d", i),
		})
		require.NoError(t, err)
		testutil.RequireStatus(t, resp, http.StatusCreated)
		_ = resp.Body.Close()
	}

	// per-user trail, most recent first
	resp, err := client.GET("/api/v1/users/" + userID + "/history?limit=5")
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var entries []domain.HistoryEntry
	testutil.DecodeData(t, resp, &entries)
	assert.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i-1].CreatedAt.Before(entries[i].CreatedAt))
	}

	// date range query
	from := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)
	resp, err = client.GET("/api/v1/history?from=" + from + "&to=" + to)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.DecodeData(t, resp, &entries)
	assert.NotEmpty(t, entries)

	// inverted range is rejected
	resp, err = client.GET("/api/v1/history?from=" + to + "&to=" + from)
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
}

func TestPreferences_Effective(t *testing.T) {
	client := newTestClient()
	userID := "user-" + uuid.NewString()

	resp, err := client.GET("/api/v1/users/" + userID + "/preferences")
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusOK)

	var prefs []domain.Preference
	testutil.DecodeData(t, resp, &prefs)
	assert.Len(t, prefs, len(domain.NotificationTypes)*len(domain.Channels))

	// protected default cannot be disabled
	resp, err = client.PUT("/api/v1/users/"+userID+"/preferences", map[string]any{
		"preferences": []map[string]any{
			{"type": "system", "channel": "in_app", "enabled": false},
		},
	})
	require.NoError(t, err)
	testutil.RequireStatus(t, resp, http.StatusBadRequest)
}
