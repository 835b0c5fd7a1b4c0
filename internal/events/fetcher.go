package events

import (
	"context"
	"strings"
	"time"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/dispatch"
	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/pkg/brevo"
)

// eventsAPI is the slice of the Brevo client the fetcher needs.
type eventsAPI interface {
	GetMessageEvents(ctx context.Context, messageID string) ([]brevo.EventRecord, error)
}

// Fetcher retrieves per-message event histories. Each message id is queried
// independently with its own retry budget: one id exhausting its retries
// yields a synthetic error record for that id and leaves the others untouched.
type Fetcher struct {
	api            eventsAPI
	retry          dispatch.RetryPolicy
	rateLimitDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(api eventsAPI, dispatchCfg environments.DispatchConfig, eventsCfg environments.EventsConfig) *Fetcher {
	retry := dispatch.NewRetryPolicy(dispatchCfg)
	retry.MaxRetries = eventsCfg.FetchRetries

	return &Fetcher{
		api:            api,
		retry:          retry,
		rateLimitDelay: dispatchCfg.RateLimitDelay,
		sleep:          func(ctx context.Context, d time.Duration) error { return waitFor(ctx, d) },
	}
}

// GetEvents returns the raw event list for every requested message id. A
// malformed id (no "@") short-circuits to a single error record without any
// network call; a fetch that fails after its retry budget does the same with
// the classified message.
func (f *Fetcher) GetEvents(ctx context.Context, messageIDs []string) map[string][]domain.RawEvent {
	results := make(map[string][]domain.RawEvent, len(messageIDs))

	for _, msgID := range messageIDs {
		if !strings.Contains(msgID, "@") {
			results[msgID] = []domain.RawEvent{errorEvent(msgID, "Invalid Message ID format")}
			continue
		}

		var records []brevo.EventRecord

		err := f.retry.Do(ctx, "fetch events", func() error {
			if err := f.sleep(ctx, f.rateLimitDelay); err != nil {
				return err
			}

			out, fetchErr := f.api.GetMessageEvents(ctx, msgID)
			if fetchErr != nil {
				return fetchErr
			}
			records = out
			return nil
		})
		if err != nil {
			_, msg := dispatch.Classify(err)
			results[msgID] = []domain.RawEvent{errorEvent(msgID, msg)}
			continue
		}

		events := make([]domain.RawEvent, 0, len(records))
		for _, rec := range records {
			events = append(events, normalizeRecord(msgID, rec))
		}
		results[msgID] = events
	}

	return results
}

func normalizeRecord(requestedID string, rec brevo.EventRecord) domain.RawEvent {
	msgID := rec.MessageID
	if msgID == "" {
		msgID = requestedID
	}

	return domain.RawEvent{
		MessageID: msgID,
		Kind:      NormalizeKind(rec.Event),
		Email:     rec.Email,
		Subject:   rec.Subject,
		Date:      rec.Date,
		Tag:       rec.Tag,
		Reason:    rec.Reason,
		Link:      rec.Link,
	}
}

func errorEvent(msgID, reason string) domain.RawEvent {
	return domain.RawEvent{
		MessageID: msgID,
		Kind:      domain.KindError,
		Reason:    reason,
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
