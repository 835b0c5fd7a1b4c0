package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeReconciler is a simple test double for reconciler.
type fakeReconciler struct {
	updatedToReturn int
	errToReturn     error

	calls int
}

func (f *fakeReconciler) ReconcileDeliveryState(ctx context.Context) (int, error) {
	f.calls++
	return f.updatedToReturn, f.errToReturn
}

func TestScheduler_Reconcile_SuccessfulRun(t *testing.T) {
	ctx := context.Background()

	rec := &fakeReconciler{updatedToReturn: 4}
	s := &Scheduler{
		campaignService: rec,
		interval:        time.Minute,
	}

	// Set some alert config but keep alertWebhook empty so no HTTP calls
	s.alertThreshold = 3
	s.alertWebhook = ""

	s.reconcile(ctx)

	status := s.GetStatus()
	if status.RowsReconciled != 4 {
		t.Errorf("expected RowsReconciled=4, got %d", status.RowsReconciled)
	}
	if status.RunsCount != 1 {
		t.Errorf("expected RunsCount=1, got %d", status.RunsCount)
	}
	if status.ConsecutiveFailedRuns != 0 {
		t.Errorf("expected ConsecutiveFailedRuns=0, got %d", status.ConsecutiveFailedRuns)
	}
	if rec.calls != 1 {
		t.Fatalf("expected 1 reconciliation call, got %d", rec.calls)
	}
}

func TestScheduler_Reconcile_FailuresAccumulate(t *testing.T) {
	ctx := context.Background()

	rec := &fakeReconciler{errToReturn: fmt.Errorf("provider down")}
	s := &Scheduler{
		campaignService: rec,
		interval:        time.Minute,
	}
	s.alertThreshold = 5
	s.alertWebhook = ""

	s.reconcile(ctx)
	s.reconcile(ctx)
	s.reconcile(ctx)

	status := s.GetStatus()
	if status.ConsecutiveFailedRuns != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", status.ConsecutiveFailedRuns)
	}
	if status.RunsCount != 3 {
		t.Errorf("expected RunsCount=3, got %d", status.RunsCount)
	}
	if status.RowsReconciled != 0 {
		t.Errorf("expected no rows reconciled, got %d", status.RowsReconciled)
	}
}

func TestScheduler_Reconcile_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()

	rec := &fakeReconciler{errToReturn: fmt.Errorf("provider down")}
	s := &Scheduler{
		campaignService: rec,
		interval:        time.Minute,
	}
	s.alertThreshold = 5

	s.reconcile(ctx)
	s.reconcile(ctx)

	rec.errToReturn = nil
	rec.updatedToReturn = 2
	s.reconcile(ctx)

	status := s.GetStatus()
	if status.ConsecutiveFailedRuns != 0 {
		t.Errorf("expected failure count reset, got %d", status.ConsecutiveFailedRuns)
	}
	if status.RowsReconciled != 2 {
		t.Errorf("expected RowsReconciled=2, got %d", status.RowsReconciled)
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeReconciler{}
	s := &Scheduler{
		campaignService: rec,
		interval:        time.Hour, // never ticks during the test
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("expected scheduler to be running")
	}

	// Starting twice is a no-op.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start errored: %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("expected scheduler to be stopped")
	}

	// The immediate run on start should have happened exactly once.
	if rec.calls != 1 {
		t.Errorf("expected 1 reconciliation call, got %d", rec.calls)
	}

	// Stopping twice is a no-op.
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop errored: %v", err)
	}
}

func TestScheduler_GetStatus_NextRun(t *testing.T) {
	s := &Scheduler{
		campaignService: &fakeReconciler{},
		interval:        10 * time.Minute,
	}

	s.reconcile(context.Background())

	// Not running: no next run projected.
	status := s.GetStatus()
	if !status.NextRunAt.IsZero() {
		t.Errorf("expected no NextRunAt while stopped, got %v", status.NextRunAt)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	status = s.GetStatus()
	want := status.LastRunAt.Add(10 * time.Minute)
	if !status.NextRunAt.Equal(want) {
		t.Errorf("expected NextRunAt=%v, got %v", want, status.NextRunAt)
	}
}

func TestScheduler_StartWithParams_DefaultsInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Scheduler{campaignService: &fakeReconciler{}}

	if err := s.StartWithParams(ctx, 0, "", 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop() //nolint:errcheck

	if s.GetStatus().Interval != 30*time.Minute {
		t.Errorf("expected default 30m interval, got %v", s.GetStatus().Interval)
	}
}
