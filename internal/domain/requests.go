package domain

// RecipientInput is one addressee of a campaign as submitted by the client.
type RecipientInput struct {
	Email string `json:"email" validate:"required,email" example:"jane@example.com"`
	Name  string `json:"name" example:"Jane Doe"`
}

// CreateCampaignRequest creates a draft campaign with one message per
// recipient. Occurrences of {name} in the body are replaced per recipient.
type CreateCampaignRequest struct {
	Subject     string           `json:"subject" validate:"required,max=255" example:"November update"`
	SenderEmail string           `json:"senderEmail" validate:"required,email" example:"news@example.com"`
	SenderName  string           `json:"senderName" validate:"required" example:"Example News"`
	Body        string           `json:"body" validate:"required"`
	Recipients  []RecipientInput `json:"recipients" validate:"required,min=1,dive"`
}

// DispatchCampaignRequest tunes one dispatch run. Zero values fall back to
// configuration defaults.
type DispatchCampaignRequest struct {
	ChunkSize       int      `json:"chunkSize" validate:"omitempty,min=1,max=1000"`
	AttachmentPaths []string `json:"attachmentPaths"`
}

// SendMessageRequest sends a single message outside any campaign.
type SendMessageRequest struct {
	SenderEmail string `json:"senderEmail" validate:"required,email"`
	SenderName  string `json:"senderName" validate:"required"`
	ToEmail     string `json:"toEmail" validate:"required,email"`
	ToName      string `json:"toName"`
	Subject     string `json:"subject" validate:"required,max=255"`
	Body        string `json:"body" validate:"required"`
}

// SendSMSRequest submits a bulk SMS run through the gateway.
type SendSMSRequest struct {
	Messages []SMSVersion `json:"messages" validate:"required,min=1,dive"`
}
