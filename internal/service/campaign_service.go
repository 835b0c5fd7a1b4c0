package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/dispatch"
	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/internal/report"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// campaignRepo is the persistence surface the service depends on; tests
// substitute a fake.
type campaignRepo interface {
	Create(ctx context.Context, campaign *domain.Campaign, messages []domain.OutboundMessage) (*domain.Campaign, error)
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Campaign, int64, error)
	GetMessages(ctx context.Context, campaignID int64) ([]domain.CampaignMessage, error)
	MarkSending(ctx context.Context, id int64) error
	RecordDispatchResult(ctx context.Context, id int64, res domain.SendResult) error
	MarkMessageSent(ctx context.Context, campaignID int64, toEmail, messageID string, sentAt time.Time) error
	MarkMessageFailed(ctx context.Context, campaignID int64, toEmail, errMsg string) error
	GetRecentlySent(ctx context.Context, since time.Time, limit int) ([]domain.CampaignMessage, error)
	UpdateRecipientStatus(ctx context.Context, id int64, status domain.MessageStatus, detail string) error
	ReplayAllFailed(ctx context.Context, campaignID int64) (int64, error)
	ReplayFailedByID(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (pending, sent, failed, invalid int64, err error)
}

// bulkSender is the dispatch surface; the concrete implementation is
// dispatch.Dispatcher.
type bulkSender interface {
	SendBulk(ctx context.Context, sender domain.Sender, messages []domain.OutboundMessage, attachments []domain.Attachment, opts dispatch.Options) domain.SendResult
}

// eventsFetcher retrieves per-message event histories from the provider.
type eventsFetcher interface {
	GetEvents(ctx context.Context, messageIDs []string) map[string][]domain.RawEvent
}

// reportCache is the optional caching layer for sent-message records and
// correlation reports. A nil cache disables caching without branching at
// every call site; see the noopCache type.
type reportCache interface {
	CacheSentMessage(ctx context.Context, dbID int64, messageID string, sentAt time.Time) error
	GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error)
	CacheReport(ctx context.Context, reference string, rep any) error
	GetCachedReport(ctx context.Context, reference string, out any) (bool, error)
}

// CampaignService coordinates campaign persistence, bulk dispatch and
// delivery-status reconciliation.
type CampaignService struct {
	repo       campaignRepo
	dispatcher bulkSender
	fetcher    eventsFetcher
	correlator *report.Correlator
	cache      reportCache
	cfg        environments.DispatchConfig

	// reconcileWindow bounds how far back reconciliation looks for sent
	// messages still awaiting a terminal state.
	reconcileWindow time.Duration
}

func NewCampaignService(
	repo campaignRepo,
	dispatcher bulkSender,
	fetcher eventsFetcher,
	correlator *report.Correlator,
	cache reportCache,
	cfg environments.DispatchConfig,
) *CampaignService {
	if cache == nil {
		cache = noopCache{}
	}

	return &CampaignService{
		repo:            repo,
		dispatcher:      dispatcher,
		fetcher:         fetcher,
		correlator:      correlator,
		cache:           cache,
		cfg:             cfg,
		reconcileWindow: 48 * time.Hour,
	}
}

// CreateCampaign persists a draft campaign with one pending message per
// recipient. The body's {name} placeholder is expanded per recipient; dedup
// happens at dispatch time, so the draft keeps every submitted row.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	campaign := &domain.Campaign{
		Reference:   uuid.NewString(),
		Subject:     req.Subject,
		SenderEmail: req.SenderEmail,
		SenderName:  req.SenderName,
	}

	messages := make([]domain.OutboundMessage, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		messages = append(messages, domain.OutboundMessage{
			ToEmail: r.Email,
			ToName:  r.Name,
			Subject: req.Subject,
			Body:    strings.ReplaceAll(req.Body, "{name}", r.Name),
		})
	}

	created, err := s.repo.Create(ctx, campaign, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	logger.Infof("Created campaign %d (%s) with %d recipient(s)", created.ID, created.Reference, len(messages))

	return created, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int) ([]domain.Campaign, int64, error) {
	return s.repo.List(ctx, page, pageSize)
}

func (s *CampaignService) GetCampaignMessages(ctx context.Context, campaignID int64) ([]domain.CampaignMessage, error) {
	return s.repo.GetMessages(ctx, campaignID)
}

// DispatchCampaign sends every pending message of a campaign through the bulk
// dispatcher and records per-recipient outcomes. The campaign must be in
// draft or failed state; a campaign already sending is rejected by the
// repository's guarded transition.
func (s *CampaignService) DispatchCampaign(ctx context.Context, id int64, req *domain.DispatchCampaignRequest) (*domain.SendResult, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, fmt.Errorf("campaign %d not found", id)
	}

	rows, err := s.repo.GetMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign messages: %w", err)
	}

	var outbound []domain.OutboundMessage
	for _, row := range rows {
		if row.Status != domain.StatusPending && row.Status != domain.StatusFailed {
			continue
		}
		outbound = append(outbound, domain.OutboundMessage{
			ToEmail: row.ToEmail,
			ToName:  row.ToName,
			Subject: row.Subject,
			Body:    row.Body,
		})
	}

	if len(outbound) == 0 {
		return nil, fmt.Errorf("campaign %d has no pending messages", id)
	}

	if err := s.repo.MarkSending(ctx, id); err != nil {
		return nil, err
	}

	attachments := dispatch.ProcessAttachments(req.AttachmentPaths, s.cfg.MaxAttachmentBytes)

	sender := domain.Sender{Email: campaign.SenderEmail, Name: campaign.SenderName}
	result := s.dispatcher.SendBulk(ctx, sender, outbound, attachments, dispatch.Options{
		ChunkSize: req.ChunkSize,
	})

	s.recordOutcomes(ctx, id, rows, outbound, result)

	if err := s.repo.RecordDispatchResult(ctx, id, result); err != nil {
		logger.Errorf("Failed to record dispatch result for campaign %d: %v", id, err)
	}

	return &result, nil
}

// recordOutcomes maps the dispatcher's aggregate result back onto per-recipient
// rows. Message ids come back in unique-recipient order with failed recipients
// skipped, so walking the deduplicated slice recovers the pairing.
func (s *CampaignService) recordOutcomes(ctx context.Context, campaignID int64, rows []domain.CampaignMessage, outbound []domain.OutboundMessage, result domain.SendResult) {
	failed := make(map[string]bool, len(result.FailedRecipients))
	for _, email := range result.FailedRecipients {
		failed[strings.ToLower(strings.TrimSpace(email))] = true
	}

	rowIDs := make(map[string]int64, len(rows))
	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.ToEmail))
		if _, ok := rowIDs[key]; !ok {
			rowIDs[key] = row.ID
		}
	}

	now := time.Now()
	unique := dispatch.Deduplicate(outbound)

	idx := 0
	for _, msg := range unique {
		key := strings.ToLower(strings.TrimSpace(msg.ToEmail))

		if failed[key] {
			if err := s.repo.MarkMessageFailed(ctx, campaignID, msg.ToEmail, result.Message); err != nil {
				logger.Errorf("Failed to mark message failed for %s: %v", msg.ToEmail, err)
			}
			continue
		}

		if idx >= len(result.MessageIDs) {
			break
		}
		messageID := result.MessageIDs[idx]
		idx++

		if err := s.repo.MarkMessageSent(ctx, campaignID, msg.ToEmail, messageID, now); err != nil {
			logger.Errorf("Failed to mark message sent for %s: %v", msg.ToEmail, err)
			continue
		}

		if rowID, ok := rowIDs[key]; ok {
			if err := s.cache.CacheSentMessage(ctx, rowID, messageID, now); err != nil {
				logger.Debugf("Failed to cache sent message %d: %v", rowID, err)
			}
		}
	}
}

// SendSingle sends one message outside any campaign. The address is guarded
// before any network traffic happens.
func (s *CampaignService) SendSingle(ctx context.Context, req *domain.SendMessageRequest) (*domain.SendResult, error) {
	if !strings.Contains(req.ToEmail, "@") {
		return nil, fmt.Errorf("invalid recipient address: %s", req.ToEmail)
	}

	sender := domain.Sender{Email: req.SenderEmail, Name: req.SenderName}
	messages := []domain.OutboundMessage{{
		ToEmail: req.ToEmail,
		ToName:  req.ToName,
		Subject: req.Subject,
		Body:    req.Body,
	}}

	result := s.dispatcher.SendBulk(ctx, sender, messages, nil, dispatch.Options{})

	return &result, nil
}

// GetReport fetches event histories for every sent message of the campaign and
// correlates them into per-message, per-batch and summary views. Reports are
// cached by campaign reference for a short TTL.
func (s *CampaignService) GetReport(ctx context.Context, campaignID int64) (*report.Report, error) {
	campaign, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, fmt.Errorf("campaign %d not found", campaignID)
	}

	var cached report.Report
	if hit, err := s.cache.GetCachedReport(ctx, campaign.Reference, &cached); err != nil {
		logger.Warnf("Report cache read failed for campaign %d: %v", campaignID, err)
	} else if hit {
		logger.Debugf("Report cache hit for campaign %d", campaignID)
		return &cached, nil
	}

	rows, err := s.repo.GetMessages(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign messages: %w", err)
	}

	var messageIDs []string
	for _, row := range rows {
		if row.MessageID != nil && *row.MessageID != "" {
			messageIDs = append(messageIDs, *row.MessageID)
		}
	}

	if len(messageIDs) == 0 {
		return nil, fmt.Errorf("campaign %d has no sent messages to report on", campaignID)
	}

	eventsByID := s.fetcher.GetEvents(ctx, messageIDs)

	var all []domain.RawEvent
	for _, msgID := range messageIDs {
		all = append(all, eventsByID[msgID]...)
	}

	rep := s.correlator.Correlate(all)

	if err := s.cache.CacheReport(ctx, campaign.Reference, rep); err != nil {
		logger.Warnf("Report cache write failed for campaign %d: %v", campaignID, err)
	}

	return rep, nil
}

// ReconcileDeliveryState refreshes the status of recently sent messages from
// the provider's event stream. Messages whose aggregate classifies as invalid
// or failed are downgraded; everything else keeps its sent status. Returns the
// number of rows updated.
func (s *CampaignService) ReconcileDeliveryState(ctx context.Context) (int, error) {
	since := time.Now().Add(-s.reconcileWindow)

	rows, err := s.repo.GetRecentlySent(ctx, since, 200)
	if err != nil {
		return 0, fmt.Errorf("failed to load recently sent messages: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	byMessageID := make(map[string]domain.CampaignMessage, len(rows))
	messageIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.MessageID == nil || *row.MessageID == "" {
			continue
		}
		byMessageID[*row.MessageID] = row
		messageIDs = append(messageIDs, *row.MessageID)
	}

	eventsByID := s.fetcher.GetEvents(ctx, messageIDs)

	var all []domain.RawEvent
	for _, msgID := range messageIDs {
		all = append(all, eventsByID[msgID]...)
	}

	rep := s.correlator.Correlate(all)

	updated := 0
	for msgID, agg := range rep.Messages {
		row, ok := byMessageID[msgID]
		if !ok {
			continue
		}

		status, detail := s.terminalStatus(agg)
		if status == "" || status == row.Status {
			continue
		}

		if err := s.repo.UpdateRecipientStatus(ctx, row.ID, status, detail); err != nil {
			logger.Errorf("Failed to update status for message row %d: %v", row.ID, err)
			continue
		}
		updated++
	}

	logger.Infof("Reconciliation pass updated %d of %d message(s)", updated, len(messageIDs))

	return updated, nil
}

// terminalStatus maps a recipient classification to a stored message status.
// Only terminal downgrades are persisted; in-flight states return "".
func (s *CampaignService) terminalStatus(agg *report.MessageAggregate) (domain.MessageStatus, string) {
	switch s.correlator.ClassifyRecipient(agg) {
	case domain.RecipientInvalid:
		return domain.StatusInvalid, agg.BounceReason
	case domain.RecipientFailed:
		return domain.StatusFailed, agg.BounceReason
	default:
		return "", ""
	}
}

// ReplayFailed resets every failed message of the campaign back to pending so
// the next dispatch picks them up again. Returns the number of rows reset.
func (s *CampaignService) ReplayFailed(ctx context.Context, campaignID int64) (int64, error) {
	campaign, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return 0, fmt.Errorf("campaign %d not found", campaignID)
	}

	return s.repo.ReplayAllFailed(ctx, campaignID)
}

// ReplayFailedMessage resets one failed message back to pending. Errors when
// the row does not exist or is not in failed state.
func (s *CampaignService) ReplayFailedMessage(ctx context.Context, messageID int64) error {
	return s.repo.ReplayFailedByID(ctx, messageID)
}

// RecentSendActivity is one recently sent message, served cache-first.
type RecentSendActivity struct {
	RowID     int64     `json:"rowId"`
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}

// GetRecentActivity lists recently sent messages, newest first. The cache is
// consulted first; when it holds nothing the database is queried directly.
func (s *CampaignService) GetRecentActivity(ctx context.Context) ([]RecentSendActivity, error) {
	cached, err := s.cache.GetAllCachedMessages(ctx)
	if err != nil {
		logger.Warnf("Sent-message cache read failed, falling back to database: %v", err)
	}

	if len(cached) > 0 {
		out := make([]RecentSendActivity, 0, len(cached))
		for rowID, entry := range cached {
			out = append(out, RecentSendActivity{
				RowID:     rowID,
				MessageID: entry.MessageID,
				SentAt:    entry.SentAt,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
		return out, nil
	}

	rows, err := s.repo.GetRecentlySent(ctx, time.Now().Add(-24*time.Hour), 50)
	if err != nil {
		return nil, fmt.Errorf("failed to load recently sent messages: %w", err)
	}

	out := make([]RecentSendActivity, 0, len(rows))
	for _, row := range rows {
		if row.MessageID == nil || row.SentAt == nil {
			continue
		}
		out = append(out, RecentSendActivity{
			RowID:     row.ID,
			MessageID: *row.MessageID,
			SentAt:    *row.SentAt,
		})
	}

	return out, nil
}

func (s *CampaignService) GetStats(ctx context.Context) (map[string]int64, error) {
	pending, sent, failed, invalid, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]int64{
		"pending": pending,
		"sent":    sent,
		"failed":  failed,
		"invalid": invalid,
	}, nil
}

// noopCache satisfies reportCache when no cache backend is configured.
type noopCache struct{}

func (noopCache) CacheSentMessage(context.Context, int64, string, time.Time) error { return nil }
func (noopCache) CacheReport(context.Context, string, any) error                   { return nil }
func (noopCache) GetCachedReport(context.Context, string, any) (bool, error)       { return false, nil }
func (noopCache) GetAllCachedMessages(context.Context) (map[int64]*domain.SentMessageCache, error) {
	return nil, nil
}
