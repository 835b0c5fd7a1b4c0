package domain

// EventKind is the canonical bucket a provider event name is normalized into.
// Unrecognized provider names pass through verbatim as their own bucket so a
// novel event is never silently dropped.
type EventKind string

const (
	KindRequests     EventKind = "requests"
	KindDelivered    EventKind = "delivered"
	KindOpened       EventKind = "opened"
	KindClicks       EventKind = "clicks"
	KindHardBounces  EventKind = "hardBounces"
	KindSoftBounces  EventKind = "softBounces"
	KindBlocked      EventKind = "blocked"
	KindSpam         EventKind = "spam"
	KindDeferred     EventKind = "deferred"
	KindUnsubscribed EventKind = "unsubscribed"
	KindError        EventKind = "error"
)

// RawEvent is one provider-reported occurrence in a message's lifecycle.
// A single message id accumulates many of these (request, delivered, opened, ...).
// For a message id whose fetch failed, a single synthetic RawEvent with
// Kind=KindError and Reason set stands in for the whole history.
type RawEvent struct {
	MessageID string    `json:"messageId"`
	Kind      EventKind `json:"event"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Date      string    `json:"date"`
	Tag       string    `json:"tag"`
	Reason    string    `json:"reason,omitempty"`
	Link      string    `json:"link,omitempty"`
}

// RecipientStatus is the classification of a message id derived from its
// aggregate. It is recomputed on every read, never stored.
type RecipientStatus string

const (
	RecipientInvalid   RecipientStatus = "invalid"
	RecipientFailed    RecipientStatus = "failed"
	RecipientEngaged   RecipientStatus = "engaged"
	RecipientClicked   RecipientStatus = "clicked"
	RecipientOpened    RecipientStatus = "opened"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientDelayed   RecipientStatus = "delayed"
	RecipientPending   RecipientStatus = "pending"
)
