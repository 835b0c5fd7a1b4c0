package domain

import "time"

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignPartial CampaignStatus = "partial"
	CampaignFailed  CampaignStatus = "failed"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
	StatusInvalid MessageStatus = "invalid"
)

// Campaign is one bulk send: a sender, a set of personalized messages and the
// outcome counters recorded after dispatch.
type Campaign struct {
	ID                int64          `db:"id" json:"id"`
	Reference         string         `db:"reference" json:"reference"`
	Subject           string         `db:"subject" json:"subject"`
	SenderEmail       string         `db:"sender_email" json:"senderEmail"`
	SenderName        string         `db:"sender_name" json:"senderName"`
	Status            CampaignStatus `db:"status" json:"status"`
	TotalRecipients   int            `db:"total_recipients" json:"totalRecipients"`
	TotalSent         int            `db:"total_sent" json:"totalSent"`
	TotalFailed       int            `db:"total_failed" json:"totalFailed"`
	DuplicatesRemoved int            `db:"duplicates_removed" json:"duplicatesRemoved"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// CampaignMessage is the per-recipient row of a campaign. MessageID is the
// provider's delivery identifier, set once the send is accepted.
type CampaignMessage struct {
	ID         int64         `db:"id" json:"id"`
	CampaignID int64         `db:"campaign_id" json:"campaignId"`
	ToEmail    string        `db:"to_email" json:"toEmail"`
	ToName     string        `db:"to_name" json:"toName"`
	Subject    string        `db:"subject" json:"subject"`
	Body       string        `db:"body" json:"body"`
	Status     MessageStatus `db:"status" json:"status"`
	MessageID  *string       `db:"message_id" json:"messageId,omitempty"`
	LastError  *string       `db:"last_error" json:"lastError,omitempty"`
	SentAt     *time.Time    `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updatedAt"`
}

// Sender identifies the from-address of a bulk send.
type Sender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OutboundMessage is one personalized message handed to the dispatcher.
// It is never mutated after deduplication.
type OutboundMessage struct {
	ToEmail string `json:"toEmail"`
	ToName  string `json:"toName"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Attachment is a processed file ready for inclusion in a send. Content is
// base64-encoded; one processed set is shared across all chunks of a bulk send.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

type BulkStatus string

const (
	BulkSuccess BulkStatus = "success"
	BulkPartial BulkStatus = "partial"
	BulkError   BulkStatus = "error"
)

// SendResult is the aggregate outcome of one bulk send.
// Invariant: TotalSent + FailedCount equals the number of unique messages attempted.
type SendResult struct {
	Status            BulkStatus `json:"status"`
	Message           string     `json:"message"`
	TotalSent         int        `json:"totalSent"`
	FailedCount       int        `json:"failedCount"`
	MessageIDs        []string   `json:"messageIds"`
	FailedRecipients  []string   `json:"failedRecipients"`
	DuplicatesRemoved int        `json:"duplicatesRemoved"`
}

type SentMessageCache struct {
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}
