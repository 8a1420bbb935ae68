package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"learnpulse/internal/notifications"
	"learnpulse/internal/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedAlert(t *testing.T, store *memStore, id, learner string, level types.RiskLevel) {
	t.Helper()
	n := notifications.RiskAlert(learner, level, 0.8, t0, notifications.DefaultPolicy)
	n.ID = id
	if err := store.CreateNotification(context.Background(), n); err != nil {
		t.Fatal(err)
	}
}

func newRetryService(store *memStore, pub notifications.Publisher) *RetryService {
	return NewRetryService(store, store, pub, nil, nil, Options{}, testLogger())
}

func TestRetryService_HighRiskSchedule(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	pub := &recordingPublisher{}
	svc := newRetryService(store, pub)
	ctx := context.Background()

	res, err := svc.ProcessRetries(ctx, t0.Add(24*time.Hour-time.Second))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 0 {
		t.Fatalf("retried at t0+24h-1s = %d, want 0", res.Retried)
	}

	for i, at := range []time.Duration{24, 48, 72} {
		res, err := svc.ProcessRetries(ctx, t0.Add(at*time.Hour))
		if err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
		if res.Retried != 1 {
			t.Fatalf("run at t0+%dh retried %d, want 1", at, res.Retried)
		}
	}

	res, err = svc.ProcessRetries(ctx, t0.Add(96*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 0 {
		t.Errorf("fourth retry created, want cap of 3")
	}

	original := store.notifications["n-1"]
	if original.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", original.RetryCount)
	}
	if original.ReadAt != nil {
		t.Error("original must never be marked read")
	}

	reminders := store.byCategory(types.CategoryRiskReminder)
	if len(reminders) != 3 {
		t.Fatalf("reminders = %d, want 3", len(reminders))
	}
	for _, r := range reminders {
		if r.OriginLinkID == nil || *r.OriginLinkID != "n-1" {
			t.Errorf("reminder %s origin = %v, want n-1", r.ID, r.OriginLinkID)
		}
		if !strings.HasPrefix(r.Title, notifications.ReminderTitlePrefix) {
			t.Errorf("reminder title = %q, want Reminder: prefix", r.Title)
		}
		if r.MaxRetries != 0 {
			t.Errorf("reminder MaxRetries = %d, want 0", r.MaxRetries)
		}
	}
	if pub.count() != 3 {
		t.Errorf("published = %d, want 3", pub.count())
	}
}

func TestRetryService_MediumRiskSchedule(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskMedium)
	svc := newRetryService(store, nil)
	ctx := context.Background()

	want := map[time.Duration]int{24: 0, 48: 1, 72: 0, 96: 1, 144: 0}
	for _, at := range []time.Duration{24, 48, 72, 96, 144} {
		res, err := svc.ProcessRetries(ctx, t0.Add(at*time.Hour))
		if err != nil {
			t.Fatalf("run at t0+%dh error = %v", at, err)
		}
		if res.Retried != want[at] {
			t.Errorf("run at t0+%dh retried %d, want %d", at, res.Retried, want[at])
		}
	}
	if got := store.notifications["n-1"].RetryCount; got != 2 {
		t.Errorf("RetryCount = %d, want 2", got)
	}
}

func TestRetryService_LatestSnapshotLevelWins(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	seedAlert(t, store, "n-2", "learner-b", types.RiskMedium)
	// learner-a recovered; learner-b got worse.
	store.putSnapshot("learner-a", t0.Add(20*time.Hour), types.RiskLow, 0.1)
	store.putSnapshot("learner-b", t0.Add(20*time.Hour), types.RiskHigh, 0.9)

	svc := newRetryService(store, nil)
	res, err := svc.ProcessRetries(context.Background(), t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("Retried = %d, want 1", res.Retried)
	}
	if store.notifications["n-1"].RetryCount != 0 {
		t.Error("low-risk learner must not be retried")
	}
	if store.notifications["n-2"].RetryCount != 1 {
		t.Error("learner now at high risk should follow the 24h interval")
	}
}

func TestRetryService_ReadNotificationIsTerminal(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	read := t0.Add(time.Hour)
	store.notifications["n-1"].ReadAt = &read

	res, err := newRetryService(store, nil).ProcessRetries(context.Background(), t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 0 || res.Processed != 0 {
		t.Errorf("result = %+v, want nothing processed", res)
	}
}

func TestRetryService_RemindersAreNeverRetried(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	svc := newRetryService(store, nil)

	if _, err := svc.ProcessRetries(context.Background(), t0.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	// The reminder is 24h old at the next run; only the root is retried.
	res, err := svc.ProcessRetries(context.Background(), t0.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if res.Retried != 1 {
		t.Errorf("Retried = %d, want 1", res.Retried)
	}
	if got := len(store.byCategory(types.CategoryRiskReminder)); got != 2 {
		t.Errorf("reminders = %d, want 2", got)
	}
}

func TestRetryService_CreateFailureIsCounted(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	seedAlert(t, store, "n-2", "learner-b", types.RiskHigh)
	store.failCreate["learner-b"] = true

	res, err := newRetryService(store, nil).ProcessRetries(context.Background(), t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 1 || res.Errors != 1 {
		t.Errorf("result = %+v, want 1 retried and 1 error", res)
	}
}

func TestRetryService_PagesThroughNotifications(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 25; i++ {
		seedAlert(t, store, learnerID(i), learnerID(i), types.RiskHigh)
	}
	svc := NewRetryService(store, store, nil, nil, nil, Options{PageSize: 10}, testLogger())

	res, err := svc.ProcessRetries(context.Background(), t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 25 {
		t.Errorf("Retried = %d, want 25", res.Retried)
	}
}

func TestRetryService_LowOnlyPolicyDoesNothing(t *testing.T) {
	store := newMemStore()
	seedAlert(t, store, "n-1", "learner-a", types.RiskHigh)
	policy := notifications.Policy{types.RiskLow: {}}

	svc := NewRetryService(store, store, nil, policy, nil, Options{}, testLogger())
	res, err := svc.ProcessRetries(context.Background(), t0.Add(240*time.Hour))
	if err != nil {
		t.Fatalf("ProcessRetries() error = %v", err)
	}
	if res.Retried != 0 {
		t.Errorf("Retried = %d, want 0", res.Retried)
	}
}

func TestShortestInterval(t *testing.T) {
	d, ok := shortestInterval(notifications.DefaultPolicy)
	if !ok || d != 24*time.Hour {
		t.Errorf("shortestInterval = %v, %v; want 24h, true", d, ok)
	}
	if _, ok := shortestInterval(notifications.Policy{}); ok {
		t.Error("empty policy should have no interval")
	}
}
