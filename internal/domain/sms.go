package domain

// SMSVersion is one SMS to send: recipient phone number plus text.
type SMSVersion struct {
	Recipient string `json:"recipient" validate:"required,e164"`
	Text      string `json:"text" validate:"required,max=1600"`
}

// SMSSendResult is the per-item outcome of a bulk SMS send. Exactly one of
// MessageID and Error is set for an attempted item.
type SMSSendResult struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SMSState is the normalized delivery state of an SMS.
type SMSState string

const (
	SMSQueued    SMSState = "queued"
	SMSSent      SMSState = "sent"
	SMSDelivered SMSState = "delivered"
	SMSFailed    SMSState = "failed"
	SMSUnknown   SMSState = "unknown"
)

// SMSStatus is the normalized status report for one SMS message id.
type SMSStatus struct {
	MessageID string   `json:"messageId"`
	State     SMSState `json:"state"`
	RawState  string   `json:"rawState,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}
