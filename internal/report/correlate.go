package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/domain"
)

// batchKeyPattern matches the submission-timestamp+sequence prefix Brevo puts
// in message ids, e.g. <202511051257.97702503576.1@smtp-relay.mailin.fr>.
var batchKeyPattern = regexp.MustCompile(`^<(\d+\.\d+)\.\d+@`)

// BatchKey derives the batch grouping key for a message id. Ids dispatched in
// the same bulk call share the prefix; an id that does not match the expected
// shape becomes its own singleton batch rather than being dropped.
func BatchKey(messageID string) string {
	if m := batchKeyPattern.FindStringSubmatch(messageID); m != nil {
		return m[1]
	}
	return messageID
}

// MessageAggregate folds every raw event sharing a message id. Counts only
// ever grow; the recipient classification is derived from the aggregate on
// each read, never stored.
type MessageAggregate struct {
	MessageID string `json:"messageId"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag"`

	Counts map[domain.EventKind]int `json:"counts"`

	LastEvent     domain.EventKind `json:"lastEvent"`
	LastEventDate string           `json:"lastEventDate"`
	FirstSentDate string           `json:"firstSentDate"`

	ClickLinks   []string `json:"clickLinks,omitempty"`
	BounceReason string   `json:"bounceReason,omitempty"`
}

func (a *MessageAggregate) Count(kind domain.EventKind) int {
	return a.Counts[kind]
}

// BatchAggregate groups the message aggregates of one bulk send. The Total*
// fields count messages where the counter is present, not raw occurrences:
// a recipient who opened five times contributes one to TotalOpened.
type BatchAggregate struct {
	BatchKey string `json:"batchKey"`
	Subject  string `json:"subject"`
	Tag      string `json:"tag"`

	Recipients []*MessageAggregate `json:"recipients"`

	TotalSent        int `json:"totalSent"`
	TotalDelivered   int `json:"totalDelivered"`
	TotalOpened      int `json:"totalOpened"`
	TotalClicks      int `json:"totalClicks"`
	TotalHardBounces int `json:"totalHardBounces"`
	TotalSoftBounces int `json:"totalSoftBounces"`
	TotalBlocked     int `json:"totalBlocked"`
	TotalSpam        int `json:"totalSpam"`
	TotalDeferred    int `json:"totalDeferred"`
	TotalInvalid     int `json:"totalInvalid"`
	TotalFailed      int `json:"totalFailed"`

	FirstSentDate string `json:"firstSentDate"`
	LastEventDate string `json:"lastEventDate"`

	DeliveryRate string `json:"deliveryRate"`
	OpenRate     string `json:"openRate"`
	ClickRate    string `json:"clickRate"`
	InvalidRate  string `json:"invalidRate"`
	FailedRate   string `json:"failedRate"`
}

// Summary is the whole-report rollup across all batches.
type Summary struct {
	TotalMessages  int `json:"totalMessages"`
	TotalDelivered int `json:"totalDelivered"`
	TotalOpened    int `json:"totalOpened"`
	TotalClicked   int `json:"totalClicked"`
	TotalBounced   int `json:"totalBounced"`
	TotalInvalid   int `json:"totalInvalid"`
	TotalFailed    int `json:"totalFailed"`

	DeliveryRate string `json:"deliveryRate"`
	OpenRate     string `json:"openRate"`
	ClickRate    string `json:"clickRate"`
	InvalidRate  string `json:"invalidRate"`
	FailedRate   string `json:"failedRate"`
}

type Report struct {
	Messages map[string]*MessageAggregate `json:"messages"`
	Batches  []*BatchAggregate            `json:"batches"`
	Summary  Summary                      `json:"summary"`
}

// Correlator reduces flat event streams into per-message and per-batch views.
// The permanent-bounce phrase list is injected configuration: it decides when
// a soft bounce is classified invalid rather than transiently failed.
type Correlator struct {
	permanentBouncePatterns []string
}

func NewCorrelator(cfg environments.ReportConfig) *Correlator {
	patterns := make([]string, 0, len(cfg.PermanentBouncePatterns))
	for _, p := range cfg.PermanentBouncePatterns {
		patterns = append(patterns, strings.ToLower(p))
	}
	return &Correlator{permanentBouncePatterns: patterns}
}

// Correlate builds MessageAggregates, groups them into BatchAggregates and
// computes the overall summary. Events for the same message id may arrive in
// any order; dates are compared as the provider's ISO-8601 strings, which
// order lexicographically.
func (c *Correlator) Correlate(events []domain.RawEvent) *Report {
	messages := make(map[string]*MessageAggregate)
	var messageOrder []string

	for _, ev := range events {
		agg, ok := messages[ev.MessageID]
		if !ok {
			agg = &MessageAggregate{
				MessageID: ev.MessageID,
				Email:     ev.Email,
				Subject:   ev.Subject,
				Tag:       ev.Tag,
				Counts:    make(map[domain.EventKind]int),
			}
			messages[ev.MessageID] = agg
			messageOrder = append(messageOrder, ev.MessageID)
		}

		agg.Counts[ev.Kind]++

		if agg.Email == "" {
			agg.Email = ev.Email
		}
		if agg.Subject == "" {
			agg.Subject = ev.Subject
		}
		if agg.Tag == "" {
			agg.Tag = ev.Tag
		}

		if ev.Date != "" && (agg.LastEventDate == "" || ev.Date > agg.LastEventDate) {
			agg.LastEvent = ev.Kind
			agg.LastEventDate = ev.Date
		}

		// Earliest send time considers only the submission and delivery
		// events, distinct from the most-recent-event ordering above.
		if (ev.Kind == domain.KindRequests || ev.Kind == domain.KindDelivered) && ev.Date != "" {
			if agg.FirstSentDate == "" || ev.Date < agg.FirstSentDate {
				agg.FirstSentDate = ev.Date
			}
		}

		if ev.Kind == domain.KindClicks && ev.Link != "" && !contains(agg.ClickLinks, ev.Link) {
			agg.ClickLinks = append(agg.ClickLinks, ev.Link)
		}

		if agg.BounceReason == "" && ev.Reason != "" &&
			(ev.Kind == domain.KindHardBounces || ev.Kind == domain.KindSoftBounces || ev.Kind == domain.KindBlocked) {
			agg.BounceReason = ev.Reason
		}
	}

	batches := make(map[string]*BatchAggregate)
	var batchOrder []string

	for _, msgID := range messageOrder {
		agg := messages[msgID]
		key := BatchKey(msgID)

		batch, ok := batches[key]
		if !ok {
			batch = &BatchAggregate{
				BatchKey: key,
				Subject:  agg.Subject,
				Tag:      agg.Tag,
			}
			batches[key] = batch
			batchOrder = append(batchOrder, key)
		}

		batch.Recipients = append(batch.Recipients, agg)
		batch.TotalSent++
		batch.TotalDelivered += presence(agg, domain.KindDelivered)
		batch.TotalOpened += presence(agg, domain.KindOpened)
		batch.TotalClicks += presence(agg, domain.KindClicks)
		batch.TotalHardBounces += presence(agg, domain.KindHardBounces)
		batch.TotalSoftBounces += presence(agg, domain.KindSoftBounces)
		batch.TotalBlocked += presence(agg, domain.KindBlocked)
		batch.TotalSpam += presence(agg, domain.KindSpam)
		batch.TotalDeferred += presence(agg, domain.KindDeferred)

		switch c.ClassifyRecipient(agg) {
		case domain.RecipientInvalid:
			batch.TotalInvalid++
		case domain.RecipientFailed:
			batch.TotalFailed++
		}

		if agg.FirstSentDate != "" && (batch.FirstSentDate == "" || agg.FirstSentDate < batch.FirstSentDate) {
			batch.FirstSentDate = agg.FirstSentDate
		}
		if agg.LastEventDate != "" && (batch.LastEventDate == "" || agg.LastEventDate > batch.LastEventDate) {
			batch.LastEventDate = agg.LastEventDate
		}
	}

	out := make([]*BatchAggregate, 0, len(batchOrder))
	summary := Summary{TotalMessages: len(messages)}

	for _, key := range batchOrder {
		batch := batches[key]
		batch.DeliveryRate = Rate(batch.TotalDelivered, batch.TotalSent)
		batch.OpenRate = Rate(batch.TotalOpened, batch.TotalDelivered)
		batch.ClickRate = Rate(batch.TotalClicks, batch.TotalDelivered)
		batch.InvalidRate = Rate(batch.TotalInvalid, batch.TotalSent)
		batch.FailedRate = Rate(batch.TotalFailed, batch.TotalSent)

		summary.TotalDelivered += batch.TotalDelivered
		summary.TotalOpened += batch.TotalOpened
		summary.TotalClicked += batch.TotalClicks
		summary.TotalBounced += batch.TotalHardBounces + batch.TotalSoftBounces
		summary.TotalInvalid += batch.TotalInvalid
		summary.TotalFailed += batch.TotalFailed

		out = append(out, batch)
	}

	summary.DeliveryRate = Rate(summary.TotalDelivered, summary.TotalMessages)
	summary.OpenRate = Rate(summary.TotalOpened, summary.TotalDelivered)
	summary.ClickRate = Rate(summary.TotalClicked, summary.TotalDelivered)
	summary.InvalidRate = Rate(summary.TotalInvalid, summary.TotalMessages)
	summary.FailedRate = Rate(summary.TotalFailed, summary.TotalMessages)

	return &Report{
		Messages: messages,
		Batches:  out,
		Summary:  summary,
	}
}

// ClassifyRecipient derives the per-recipient status from an aggregate. The
// checks run in strict priority order and the first match wins, so a hard
// bounce outranks any engagement the provider reported for the same id.
func (c *Correlator) ClassifyRecipient(agg *MessageAggregate) domain.RecipientStatus {
	switch {
	case agg.Count(domain.KindHardBounces) > 0,
		agg.Count(domain.KindSoftBounces) > 0 && c.isPermanentBounce(agg.BounceReason):
		return domain.RecipientInvalid

	case agg.Count(domain.KindBlocked) > 0,
		agg.Count(domain.KindError) > 0,
		agg.Count(domain.KindSoftBounces) > 0:
		return domain.RecipientFailed

	case agg.Count(domain.KindDelivered) > 0:
		opened := agg.Count(domain.KindOpened) > 0
		clicked := agg.Count(domain.KindClicks) > 0
		switch {
		case opened && clicked:
			return domain.RecipientEngaged
		case clicked:
			return domain.RecipientClicked
		case opened:
			return domain.RecipientOpened
		default:
			return domain.RecipientDelivered
		}

	case agg.Count(domain.KindDeferred) > 0:
		return domain.RecipientDelayed

	default:
		return domain.RecipientPending
	}
}

func (c *Correlator) isPermanentBounce(reason string) bool {
	if reason == "" {
		return false
	}
	lower := strings.ToLower(reason)
	for _, pattern := range c.permanentBouncePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Rate formats numerator/denominator as a percentage, returning "N/A" instead
// of dividing by zero.
func Rate(numerator, denominator int) string {
	if denominator == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", float64(numerator)/float64(denominator)*100)
}

func presence(agg *MessageAggregate, kind domain.EventKind) int {
	if agg.Count(kind) > 0 {
		return 1
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
