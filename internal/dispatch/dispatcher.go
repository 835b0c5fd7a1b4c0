package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/pkg/brevo"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// transport is the minimal surface the dispatcher needs from the Brevo client;
// tests substitute a fake.
type transport interface {
	SendBatch(ctx context.Context, req *brevo.SendRequest) (*brevo.SendResponse, error)
}

// ProgressFunc receives (current successful count, total unique messages, note).
// It is invoked inline from the dispatching goroutine.
type ProgressFunc func(current, total int, message string)

// Options tune one bulk send. Zero values fall back to configuration defaults.
type Options struct {
	ChunkSize int
	Progress  ProgressFunc
}

// Dispatcher deduplicates, chunks and submits bulk sends, retrying each chunk
// independently. A chunk that fails after all retries marks only its own
// recipients failed; the remaining chunks still go out.
type Dispatcher struct {
	transport transport
	retry     RetryPolicy
	audit     *AuditLog
	cfg       environments.DispatchConfig

	// pacing sleep, injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(t transport, cfg environments.DispatchConfig, audit *AuditLog) *Dispatcher {
	return &Dispatcher{
		transport: t,
		retry:     NewRetryPolicy(cfg),
		audit:     audit,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// SendBulk sends every unique message in one or more batched API calls.
// The returned result always satisfies TotalSent+FailedCount == unique count.
// It does not return an error: a completely failed run is reported as a result
// with status "error".
func (d *Dispatcher) SendBulk(
	ctx context.Context,
	sender domain.Sender,
	messages []domain.OutboundMessage,
	attachments []domain.Attachment,
	opts Options,
) domain.SendResult {
	logger.Infof("Starting bulk send for %d messages", len(messages))

	if len(messages) == 0 {
		logger.Warnf("No messages provided for sending")
		return domain.SendResult{
			Status:           domain.BulkError,
			Message:          "no messages provided",
			MessageIDs:       []string{},
			FailedRecipients: []string{},
		}
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = d.cfg.DefaultChunkSize
	}

	unique := Deduplicate(messages)
	duplicatesRemoved := len(messages) - len(unique)
	total := len(unique)

	if duplicatesRemoved > 0 {
		logger.Infof("Removed %d duplicate recipient(s)", duplicatesRemoved)
		if opts.Progress != nil {
			opts.Progress(0, total, fmt.Sprintf("Removed %d duplicate recipient(s)", duplicatesRemoved))
		}
	}

	var (
		sent             int
		failed           int
		messageIDs       = []string{}
		failedRecipients = []string{}
	)

	totalChunks := (total + chunkSize - 1) / chunkSize

	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunk := unique[start:end]
		chunkNum := start/chunkSize + 1

		logger.Infof("Processing chunk %d/%d: messages %d to %d", chunkNum, totalChunks, start, end)

		if opts.Progress != nil {
			opts.Progress(sent, total, fmt.Sprintf("Processing chunk %d/%d...", chunkNum, totalChunks))
		}

		ids, err := d.sendChunk(ctx, sender, chunk, attachments)
		if err != nil {
			_, errMsg := Classify(err)
			logger.Errorf("Chunk %d failed permanently: %s", chunkNum, errMsg)

			failed += len(chunk)
			for _, msg := range chunk {
				failedRecipients = append(failedRecipients, msg.ToEmail)
			}

			d.audit.RecordFailure(
				sender.Email, "Bulk Send", "Batch Send Failed",
				fmt.Sprintf("Chunk %d (messages %d to %d)", chunkNum, start, end),
				errMsg,
			)

			if opts.Progress != nil {
				opts.Progress(sent, total, fmt.Sprintf("Chunk %d failed: %s", chunkNum, truncate(errMsg, 100)))
			}

			continue
		}

		messageIDs = append(messageIDs, ids...)
		sent += len(ids)

		logger.Infof("Chunk %d sent successfully: %d message(s)", chunkNum, len(ids))

		if opts.Progress != nil {
			opts.Progress(sent, total, fmt.Sprintf("Chunk %d completed: %d message(s) sent", chunkNum, len(ids)))
		}

		// Pace between chunk submissions, not after the last one.
		if end < total {
			if err := d.sleep(ctx, d.cfg.ChunkDelay); err != nil {
				// Cancelled mid-run: account for everything not yet attempted.
				for _, msg := range unique[end:] {
					failedRecipients = append(failedRecipients, msg.ToEmail)
				}
				failed += total - end
				break
			}
		}
	}

	status := domain.BulkSuccess
	if sent == 0 {
		status = domain.BulkError
	} else if failed > 0 {
		status = domain.BulkPartial
	}

	logger.Infof("Bulk send completed: %d sent, %d failed out of %d (%d duplicates removed)",
		sent, failed, total, duplicatesRemoved)

	return domain.SendResult{
		Status:            status,
		Message:           fmt.Sprintf("%d/%d messages sent successfully. %d failed.", sent, total, failed),
		TotalSent:         sent,
		FailedCount:       failed,
		MessageIDs:        messageIDs,
		FailedRecipients:  failedRecipients,
		DuplicatesRemoved: duplicatesRemoved,
	}
}

// sendChunk drives one batched request through the retry policy and extracts
// one delivery identifier per recipient.
func (d *Dispatcher) sendChunk(
	ctx context.Context,
	sender domain.Sender,
	chunk []domain.OutboundMessage,
	attachments []domain.Attachment,
) ([]string, error) {
	req := buildSendRequest(sender, chunk, attachments)

	var resp *brevo.SendResponse

	err := d.retry.Do(ctx, "send chunk", func() error {
		// Pace immediately before each network call.
		if err := d.sleep(ctx, d.cfg.RateLimitDelay); err != nil {
			return err
		}

		out, sendErr := d.transport.SendBatch(ctx, req)
		if sendErr != nil {
			return sendErr
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	return extractMessageIDs(resp, len(chunk)), nil
}

func buildSendRequest(sender domain.Sender, chunk []domain.OutboundMessage, attachments []domain.Attachment) *brevo.SendRequest {
	versions := make([]brevo.MessageVersion, 0, len(chunk))
	for _, msg := range chunk {
		versions = append(versions, brevo.MessageVersion{
			To:          []brevo.Party{{Email: msg.ToEmail, Name: msg.ToName}},
			Subject:     msg.Subject,
			HTMLContent: strings.ReplaceAll(msg.Body, "\n", "<br>"),
		})
	}

	req := &brevo.SendRequest{
		Sender:          brevo.Party{Email: sender.Email, Name: sender.Name},
		MessageVersions: versions,
	}

	for _, att := range attachments {
		req.Attachment = append(req.Attachment, brevo.AttachmentPayload{
			Name:    att.Name,
			Content: att.Content,
		})
	}

	return req
}

// Deduplicate removes messages whose recipient address repeats, comparing
// case-insensitively after trimming; the first occurrence wins. Messages with
// an empty address are dropped as well.
func Deduplicate(messages []domain.OutboundMessage) []domain.OutboundMessage {
	seen := make(map[string]bool, len(messages))
	unique := make([]domain.OutboundMessage, 0, len(messages))

	for _, msg := range messages {
		email := strings.ToLower(strings.TrimSpace(msg.ToEmail))
		if email == "" || seen[email] {
			if email != "" {
				logger.Debugf("Skipping duplicate recipient: %s", email)
			}
			continue
		}
		seen[email] = true
		unique = append(unique, msg)
	}

	return unique
}

// extractMessageIDs reads delivery identifiers out of the response, tolerating
// the single-id shape. When the response yields a different count than
// expected, placeholders fill the gap so the chunk is degraded rather than
// failed and per-recipient accounting stays intact.
func extractMessageIDs(resp *brevo.SendResponse, expected int) []string {
	var ids []string

	switch {
	case resp != nil && len(resp.MessageIDs) > 0:
		ids = append(ids, resp.MessageIDs...)
	case resp != nil && resp.MessageID != "":
		ids = []string{resp.MessageID}
	}

	if len(ids) > expected {
		ids = ids[:expected]
	}

	if len(ids) < expected {
		logger.Warnf("Could not extract %d message id(s) from response, synthesizing placeholders", expected-len(ids))
		now := time.Now().Unix()
		for i := len(ids); i < expected; i++ {
			ids = append(ids, fmt.Sprintf("unknown_id_%d_%d", i, now))
		}
	}

	return ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
