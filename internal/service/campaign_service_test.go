package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/dispatch"
	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/internal/report"
)

//
// Test fakes – only for this file.
//

type markSentCall struct {
	campaignID int64
	toEmail    string
	messageID  string
}

type fakeRepo struct {
	campaign *domain.Campaign
	messages []domain.CampaignMessage
	recent   []domain.CampaignMessage

	markSendingCalls []int64
	markSentCalls    []markSentCall
	markFailedCalls  []string
	recordedResults  []domain.SendResult
	statusUpdates    map[int64]domain.MessageStatus
	replayAllResult  int64
	replayByIDCalls  []int64
	markSendingErr   error
}

func (r *fakeRepo) Create(ctx context.Context, campaign *domain.Campaign, messages []domain.OutboundMessage) (*domain.Campaign, error) {
	created := *campaign
	created.ID = 1
	created.Status = domain.CampaignDraft
	created.TotalRecipients = len(messages)
	r.campaign = &created
	return &created, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	if r.campaign == nil || r.campaign.ID != id {
		return nil, nil
	}
	return r.campaign, nil
}

func (r *fakeRepo) List(ctx context.Context, page, pageSize int) ([]domain.Campaign, int64, error) {
	if r.campaign == nil {
		return nil, 0, nil
	}
	return []domain.Campaign{*r.campaign}, 1, nil
}

func (r *fakeRepo) GetMessages(ctx context.Context, campaignID int64) ([]domain.CampaignMessage, error) {
	return r.messages, nil
}

func (r *fakeRepo) MarkSending(ctx context.Context, id int64) error {
	r.markSendingCalls = append(r.markSendingCalls, id)
	return r.markSendingErr
}

func (r *fakeRepo) RecordDispatchResult(ctx context.Context, id int64, res domain.SendResult) error {
	r.recordedResults = append(r.recordedResults, res)
	return nil
}

func (r *fakeRepo) MarkMessageSent(ctx context.Context, campaignID int64, toEmail, messageID string, sentAt time.Time) error {
	r.markSentCalls = append(r.markSentCalls, markSentCall{
		campaignID: campaignID,
		toEmail:    toEmail,
		messageID:  messageID,
	})
	return nil
}

func (r *fakeRepo) MarkMessageFailed(ctx context.Context, campaignID int64, toEmail, errMsg string) error {
	r.markFailedCalls = append(r.markFailedCalls, toEmail)
	return nil
}

func (r *fakeRepo) GetRecentlySent(ctx context.Context, since time.Time, limit int) ([]domain.CampaignMessage, error) {
	return r.recent, nil
}

func (r *fakeRepo) UpdateRecipientStatus(ctx context.Context, id int64, status domain.MessageStatus, detail string) error {
	if r.statusUpdates == nil {
		r.statusUpdates = make(map[int64]domain.MessageStatus)
	}
	r.statusUpdates[id] = status
	return nil
}

func (r *fakeRepo) ReplayAllFailed(ctx context.Context, campaignID int64) (int64, error) {
	return r.replayAllResult, nil
}

func (r *fakeRepo) ReplayFailedByID(ctx context.Context, id int64) error {
	r.replayByIDCalls = append(r.replayByIDCalls, id)
	return nil
}

func (r *fakeRepo) GetStats(ctx context.Context) (pending, sent, failed, invalid int64, err error) {
	return 3, 5, 2, 1, nil
}

type fakeDispatcher struct {
	result domain.SendResult

	lastSender   domain.Sender
	lastMessages []domain.OutboundMessage
	lastOpts     dispatch.Options
	calls        int
}

func (d *fakeDispatcher) SendBulk(ctx context.Context, sender domain.Sender, messages []domain.OutboundMessage, attachments []domain.Attachment, opts dispatch.Options) domain.SendResult {
	d.calls++
	d.lastSender = sender
	d.lastMessages = messages
	d.lastOpts = opts
	return d.result
}

type fakeFetcher struct {
	events map[string][]domain.RawEvent
	calls  [][]string
}

func (f *fakeFetcher) GetEvents(ctx context.Context, messageIDs []string) map[string][]domain.RawEvent {
	f.calls = append(f.calls, messageIDs)
	out := make(map[string][]domain.RawEvent, len(messageIDs))
	for _, id := range messageIDs {
		out[id] = f.events[id]
	}
	return out
}

type fakeCache struct {
	sent      map[int64]string
	sentTimes map[int64]time.Time
	reports   map[string]*report.Report
}

func (c *fakeCache) CacheSentMessage(ctx context.Context, dbID int64, messageID string, sentAt time.Time) error {
	if c.sent == nil {
		c.sent = make(map[int64]string)
	}
	c.sent[dbID] = messageID
	if c.sentTimes == nil {
		c.sentTimes = make(map[int64]time.Time)
	}
	c.sentTimes[dbID] = sentAt
	return nil
}

func (c *fakeCache) GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error) {
	out := make(map[int64]*domain.SentMessageCache, len(c.sent))
	for id, msgID := range c.sent {
		out[id] = &domain.SentMessageCache{MessageID: msgID, SentAt: c.sentTimes[id]}
	}
	return out, nil
}

func (c *fakeCache) CacheReport(ctx context.Context, reference string, rep any) error {
	if c.reports == nil {
		c.reports = make(map[string]*report.Report)
	}
	if r, ok := rep.(*report.Report); ok {
		c.reports[reference] = r
	}
	return nil
}

func (c *fakeCache) GetCachedReport(ctx context.Context, reference string, out any) (bool, error) {
	r, ok := c.reports[reference]
	if !ok {
		return false, nil
	}
	if dst, ok := out.(*report.Report); ok {
		*dst = *r
	}
	return true, nil
}

func newTestService(repo *fakeRepo, dispatcher *fakeDispatcher, fetcher *fakeFetcher, cache *fakeCache) *CampaignService {
	var c reportCache
	if cache != nil {
		c = cache
	}
	return NewCampaignService(
		repo,
		dispatcher,
		fetcher,
		report.NewCorrelator(environments.ReportConfig{
			PermanentBouncePatterns: []string{"unknown recipient"},
		}),
		c,
		environments.DispatchConfig{DefaultChunkSize: 500},
	)
}

func pendingMessages(n int) []domain.CampaignMessage {
	rows := make([]domain.CampaignMessage, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.CampaignMessage{
			ID:         int64(i + 1),
			CampaignID: 1,
			ToEmail:    fmt.Sprintf("user%d@example.com", i),
			Subject:    "Hello",
			Body:       "Body",
			Status:     domain.StatusPending,
		})
	}
	return rows
}

func TestCreateCampaign_ExpandsRecipients(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeDispatcher{}, &fakeFetcher{}, nil)

	created, err := svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Subject:     "Hi",
		SenderEmail: "s@example.com",
		SenderName:  "Sender",
		Body:        "Hello {name}!",
		Recipients: []domain.RecipientInput{
			{Email: "a@example.com", Name: "Alice"},
			{Email: "b@example.com", Name: "Bob"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.TotalRecipients != 2 {
		t.Errorf("expected 2 recipients, got %d", created.TotalRecipients)
	}
	if created.Reference == "" {
		t.Errorf("expected a generated reference")
	}
	if created.Status != domain.CampaignDraft {
		t.Errorf("expected draft status, got %s", created.Status)
	}
}

func TestDispatchCampaign_MapsOutcomesBack(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: 1, Reference: "ref-1", SenderEmail: "s@example.com", Status: domain.CampaignDraft},
		messages: pendingMessages(3),
	}
	dispatcher := &fakeDispatcher{
		result: domain.SendResult{
			Status:           domain.BulkPartial,
			TotalSent:        2,
			FailedCount:      1,
			MessageIDs:       []string{"<a@x>", "<b@x>"},
			FailedRecipients: []string{"user1@example.com"},
		},
	}
	cache := &fakeCache{}
	svc := newTestService(repo, dispatcher, &fakeFetcher{}, cache)

	res, err := svc.DispatchCampaign(context.Background(), 1, &domain.DispatchCampaignRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != domain.BulkPartial {
		t.Errorf("expected partial result, got %s", res.Status)
	}
	if len(repo.markSendingCalls) != 1 {
		t.Errorf("expected campaign marked sending once, got %d", len(repo.markSendingCalls))
	}

	// user0 and user2 got real ids; user1 failed.
	if len(repo.markSentCalls) != 2 {
		t.Fatalf("expected 2 sent marks, got %d", len(repo.markSentCalls))
	}
	if repo.markSentCalls[0].toEmail != "user0@example.com" || repo.markSentCalls[0].messageID != "<a@x>" {
		t.Errorf("unexpected first sent mark: %+v", repo.markSentCalls[0])
	}
	if repo.markSentCalls[1].toEmail != "user2@example.com" || repo.markSentCalls[1].messageID != "<b@x>" {
		t.Errorf("unexpected second sent mark: %+v", repo.markSentCalls[1])
	}
	if len(repo.markFailedCalls) != 1 || repo.markFailedCalls[0] != "user1@example.com" {
		t.Errorf("unexpected failed marks: %v", repo.markFailedCalls)
	}

	if len(repo.recordedResults) != 1 {
		t.Errorf("expected dispatch result recorded once, got %d", len(repo.recordedResults))
	}

	// Sent messages were cached by row id.
	if cache.sent[1] != "<a@x>" || cache.sent[3] != "<b@x>" {
		t.Errorf("unexpected sent-message cache: %v", cache.sent)
	}
}

func TestDispatchCampaign_NoPendingMessages(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: 1, Status: domain.CampaignSent},
		messages: []domain.CampaignMessage{
			{ID: 1, ToEmail: "a@example.com", Status: domain.StatusSent},
		},
	}
	dispatcher := &fakeDispatcher{}
	svc := newTestService(repo, dispatcher, &fakeFetcher{}, nil)

	_, err := svc.DispatchCampaign(context.Background(), 1, &domain.DispatchCampaignRequest{})
	if err == nil {
		t.Fatalf("expected error for campaign with no pending messages")
	}
	if dispatcher.calls != 0 {
		t.Errorf("expected no dispatch attempt, got %d", dispatcher.calls)
	}
}

func TestDispatchCampaign_UnknownCampaign(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeDispatcher{}, &fakeFetcher{}, nil)

	_, err := svc.DispatchCampaign(context.Background(), 42, &domain.DispatchCampaignRequest{})
	if err == nil {
		t.Fatalf("expected error for unknown campaign")
	}
}

func TestSendSingle_RejectsMalformedAddress(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc := newTestService(&fakeRepo{}, dispatcher, &fakeFetcher{}, nil)

	_, err := svc.SendSingle(context.Background(), &domain.SendMessageRequest{
		SenderEmail: "s@example.com",
		ToEmail:     "not-an-address",
		Subject:     "Hi",
		Body:        "Body",
	})

	if err == nil {
		t.Fatalf("expected validation error")
	}
	if dispatcher.calls != 0 {
		t.Errorf("expected no dispatch for malformed address, got %d calls", dispatcher.calls)
	}
}

func TestGetReport_CorrelatesAndCaches(t *testing.T) {
	id1 := "<202511051257.500.1@x>"
	id2 := "<202511051257.500.2@x>"

	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: 1, Reference: "ref-1"},
		messages: []domain.CampaignMessage{
			{ID: 1, ToEmail: "a@example.com", Status: domain.StatusSent, MessageID: &id1},
			{ID: 2, ToEmail: "b@example.com", Status: domain.StatusSent, MessageID: &id2},
			{ID: 3, ToEmail: "c@example.com", Status: domain.StatusFailed},
		},
	}
	fetcher := &fakeFetcher{
		events: map[string][]domain.RawEvent{
			id1: {{MessageID: id1, Kind: domain.KindDelivered, Date: "2025-11-05 12:58:00"}},
			id2: {{MessageID: id2, Kind: domain.KindHardBounces, Reason: "bad", Date: "2025-11-05 12:58:05"}},
		},
	}
	cache := &fakeCache{}
	svc := newTestService(repo, &fakeDispatcher{}, fetcher, cache)

	rep, err := svc.GetReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.Summary.TotalMessages != 2 {
		t.Errorf("expected 2 messages in report, got %d", rep.Summary.TotalMessages)
	}
	// Only rows with message ids are fetched.
	if len(fetcher.calls) != 1 || len(fetcher.calls[0]) != 2 {
		t.Fatalf("expected one fetch of 2 ids, got %v", fetcher.calls)
	}
	if cache.reports["ref-1"] == nil {
		t.Errorf("expected report cached under the campaign reference")
	}

	// Second read is served from cache without refetching.
	if _, err := svc.GetReport(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error on cached read: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("expected no second fetch, got %d", len(fetcher.calls))
	}
}

func TestGetReport_NoSentMessages(t *testing.T) {
	repo := &fakeRepo{
		campaign: &domain.Campaign{ID: 1, Reference: "ref-1"},
		messages: []domain.CampaignMessage{
			{ID: 1, ToEmail: "a@example.com", Status: domain.StatusFailed},
		},
	}
	svc := newTestService(repo, &fakeDispatcher{}, &fakeFetcher{}, nil)

	if _, err := svc.GetReport(context.Background(), 1); err == nil {
		t.Fatalf("expected error when nothing was sent")
	}
}

func TestReconcileDeliveryState_DowngradesTerminalStates(t *testing.T) {
	bounced := "<202511051257.500.1@x>"
	healthy := "<202511051257.500.2@x>"
	blocked := "<202511051257.500.3@x>"

	repo := &fakeRepo{
		recent: []domain.CampaignMessage{
			{ID: 10, ToEmail: "a@example.com", Status: domain.StatusSent, MessageID: &bounced},
			{ID: 11, ToEmail: "b@example.com", Status: domain.StatusSent, MessageID: &healthy},
			{ID: 12, ToEmail: "c@example.com", Status: domain.StatusSent, MessageID: &blocked},
		},
	}
	fetcher := &fakeFetcher{
		events: map[string][]domain.RawEvent{
			bounced: {{MessageID: bounced, Kind: domain.KindHardBounces, Reason: "gone", Date: "2025-11-05 13:00:00"}},
			healthy: {{MessageID: healthy, Kind: domain.KindDelivered, Date: "2025-11-05 13:00:00"}},
			blocked: {{MessageID: blocked, Kind: domain.KindBlocked, Reason: "listed", Date: "2025-11-05 13:00:00"}},
		},
	}
	svc := newTestService(repo, &fakeDispatcher{}, fetcher, nil)

	updated, err := svc.ReconcileDeliveryState(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated != 2 {
		t.Errorf("expected 2 rows updated, got %d", updated)
	}
	if repo.statusUpdates[10] != domain.StatusInvalid {
		t.Errorf("expected row 10 invalid, got %q", repo.statusUpdates[10])
	}
	if repo.statusUpdates[12] != domain.StatusFailed {
		t.Errorf("expected row 12 failed, got %q", repo.statusUpdates[12])
	}
	if _, touched := repo.statusUpdates[11]; touched {
		t.Errorf("expected delivered row to keep its status")
	}
}

func TestReconcileDeliveryState_NothingRecent(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(&fakeRepo{}, &fakeDispatcher{}, fetcher, nil)

	updated, err := svc.ReconcileDeliveryState(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected no updates, got %d", updated)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("expected no event fetches, got %d", len(fetcher.calls))
	}
}

func TestGetRecentActivity_ServesCacheFirst(t *testing.T) {
	repo := &fakeRepo{recent: pendingMessages(3)}
	cache := &fakeCache{
		sent:      map[int64]string{7: "<a@x>", 8: "<b@x>"},
		sentTimes: map[int64]time.Time{7: time.Now().Add(-time.Hour), 8: time.Now()},
	}
	svc := newTestService(repo, &fakeDispatcher{}, &fakeFetcher{}, cache)

	activity, err := svc.GetRecentActivity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(activity) != 2 {
		t.Fatalf("expected 2 cached entries, got %d", len(activity))
	}
	// Newest first.
	if activity[0].RowID != 8 || activity[1].RowID != 7 {
		t.Errorf("expected rows ordered newest first, got %+v", activity)
	}
}

func TestGetRecentActivity_FallsBackToDatabase(t *testing.T) {
	msgID := "<a@x>"
	sentAt := time.Now().Add(-time.Minute)

	repo := &fakeRepo{
		recent: []domain.CampaignMessage{
			{ID: 5, ToEmail: "a@example.com", Status: domain.StatusSent, MessageID: &msgID, SentAt: &sentAt},
			{ID: 6, ToEmail: "b@example.com", Status: domain.StatusSent},
		},
	}
	svc := newTestService(repo, &fakeDispatcher{}, &fakeFetcher{}, nil)

	activity, err := svc.GetRecentActivity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Rows without a message id or sent timestamp are skipped.
	if len(activity) != 1 {
		t.Fatalf("expected 1 entry from the database, got %d", len(activity))
	}
	if activity[0].RowID != 5 || activity[0].MessageID != msgID {
		t.Errorf("unexpected entry: %+v", activity[0])
	}
}

func TestGetStats_MapsCounters(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeDispatcher{}, &fakeFetcher{}, nil)

	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats["pending"] != 3 || stats["sent"] != 5 || stats["failed"] != 2 || stats["invalid"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
