package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/campaignkit/dispatch-service/internal/service"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// reconciler is a minimal internal interface for the scheduler. It matches
// the ReconcileDeliveryState method of CampaignService and lets us unit test
// the scheduler with a small fake implementation.
type reconciler interface {
	ReconcileDeliveryState(ctx context.Context) (int, error)
}

// Scheduler periodically refreshes delivery state for recently sent messages
// from the provider's event stream.
type Scheduler struct {
	campaignService reconciler
	interval        time.Duration
	alertWebhook    string
	alertThreshold  int // Number of consecutive failed runs before alert
	lastAlertSentAt time.Time

	// Internal state
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex

	// Statistics
	lastRunAt      time.Time
	rowsReconciled int64
	runsCount      int64

	// Alert tracking
	consecutiveFailedRuns int
}

func NewScheduler(campaignService *service.CampaignService, interval time.Duration) *Scheduler {
	return &Scheduler{
		campaignService: campaignService,
		interval:        interval,
		running:         false,
	}
}

func (s *Scheduler) StartWithParams(
	ctx context.Context,
	intervalMinutes int,
	alertWebhook string,
	alertThreshold int,
) error {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}

	s.mu.Lock()
	s.interval = time.Duration(intervalMinutes) * time.Minute
	s.alertWebhook = alertWebhook
	s.alertThreshold = alertThreshold
	s.consecutiveFailedRuns = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	logger.Infof("Starting reconciliation scheduler with interval: %v", s.interval)

	go s.run(ctx)

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneChan)

	s.reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Infof("Scheduler running. Next reconciliation in %v", s.interval)

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)
			logger.Debugf("Next reconciliation in %v", s.interval)

		case <-s.stopChan:
			logger.Warnf("Scheduler received stop signal")
			return

		case <-ctx.Done():
			logger.Warnf("Scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	alertWebhook := s.alertWebhook
	alertThreshold := s.alertThreshold
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting reconciliation at %s", runNumber, s.lastRunAt.Format(time.RFC3339))

	updated, err := s.campaignService.ReconcileDeliveryState(ctx)

	s.mu.Lock()
	if err != nil {
		s.consecutiveFailedRuns++
		logger.Errorf("[Run #%d] Reconciliation failed: %v (consecutive failures: %d/%d)",
			runNumber, err, s.consecutiveFailedRuns, alertThreshold)

		if s.consecutiveFailedRuns >= alertThreshold && alertThreshold > 0 && alertWebhook != "" {
			go s.sendAlert(alertWebhook, runNumber, s.consecutiveFailedRuns)
		}
		s.mu.Unlock()
		return
	}

	if s.consecutiveFailedRuns > 0 {
		logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)", runNumber, s.consecutiveFailedRuns)
	}
	s.consecutiveFailedRuns = 0
	s.rowsReconciled += int64(updated)
	s.mu.Unlock()

	logger.Infof("[Run #%d] Reconciliation updated %d message(s)", runNumber, updated)
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}

	s.running = false
	stopChan := s.stopChan
	doneChan := s.doneChan
	s.mu.Unlock()

	// Send stop signal
	close(stopChan)

	// Wait for goroutine to finish
	<-doneChan

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:               s.running,
		LastRunAt:             s.lastRunAt,
		RowsReconciled:        s.rowsReconciled,
		RunsCount:             s.runsCount,
		Interval:              s.interval,
		ConsecutiveFailedRuns: s.consecutiveFailedRuns,
		LastAlertSentAt:       s.lastAlertSentAt,
	}

	if s.running && !s.lastRunAt.IsZero() {
		status.NextRunAt = s.lastRunAt.Add(s.interval)
	}

	return status
}

func (s *Scheduler) sendAlert(webhookURL string, runNumber int64, consecutiveFailures int) {
	alertPayload := map[string]any{
		"alert":               "reconciliation_failing",
		"runNumber":           runNumber,
		"consecutiveFailures": consecutiveFailures,
		"timestamp":           time.Now().Format(time.RFC3339),
		"message": fmt.Sprintf(
			"Delivery-state reconciliation failed for %d consecutive runs",
			consecutiveFailures,
		),
	}

	jsonData, err := json.Marshal(alertPayload)
	if err != nil {
		logger.Errorf("Failed to marshal alert payload: %v", err)
		return
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("Failed to close alert webhook response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		s.mu.Lock()
		s.lastAlertSentAt = time.Now()
		s.mu.Unlock()
		logger.Infof("Alert sent successfully to %s (consecutive failures: %d)", webhookURL, consecutiveFailures)
	} else {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode)
	}
}

type SchedulerStatus struct {
	Running               bool          `json:"running"`
	LastRunAt             time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt             time.Time     `json:"nextRunAt,omitempty"`
	RowsReconciled        int64         `json:"rowsReconciled"`
	RunsCount             int64         `json:"runsCount"`
	Interval              time.Duration `json:"interval"`
	ConsecutiveFailedRuns int           `json:"consecutiveFailedRuns"`
	LastAlertSentAt       time.Time     `json:"lastAlertSentAt,omitempty"`
}
