package brevo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// APIError is a failed call to the Brevo API. Status 0 means the request never
// produced an HTTP response (connection error, timeout). RetryAfter carries the
// provider's Retry-After hint when the response included one.
type APIError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("brevo: transport error: %s", e.Body)
	}
	return fmt.Sprintf("brevo: HTTP %d: %s", e.Status, e.Body)
}

type Party struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// MessageVersion is one personalized message inside a batched send. Each
// version carries its own subject and body, so one network call can serve
// many distinct recipients.
type MessageVersion struct {
	To          []Party `json:"to"`
	Subject     string  `json:"subject"`
	HTMLContent string  `json:"htmlContent"`
}

type AttachmentPayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type SendRequest struct {
	Sender          Party               `json:"sender"`
	MessageVersions []MessageVersion    `json:"messageVersions"`
	Attachment      []AttachmentPayload `json:"attachment,omitempty"`
}

type SendResponse struct {
	MessageIDs []string `json:"messageIds"`
	MessageID  string   `json:"messageId"`
}

// EventRecord is one raw event row from the transactional event report.
type EventRecord struct {
	Event     string `json:"event"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	MessageID string `json:"messageId"`
	Date      string `json:"date"`
	Tag       string `json:"tag"`
	Reason    string `json:"reason"`
	Link      string `json:"link"`
}

type eventReport struct {
	Events []EventRecord `json:"events"`
}

type Client struct {
	httpClient *resty.Client
}

// NewClient builds a Brevo API client. Retries are deliberately not configured
// on the resty client: the dispatch retry engine owns retry policy so that
// chunk-level failure accounting stays correct.
func NewClient(cfg environments.BrevoConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("api-key", cfg.APIKey)

	return &Client{httpClient: client}
}

// SendBatch submits one batched transactional email request. On any failure it
// returns an *APIError carrying the HTTP status, response body and Retry-After
// hint so the caller can classify it.
func (c *Client) SendBatch(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	var out SendResponse

	start := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/smtp/email")

	if err != nil {
		return nil, &APIError{Status: 0, Body: err.Error()}
	}

	logger.Infof("Brevo batch send of %d version(s) completed in %v (status: %d)",
		len(req.MessageVersions), time.Since(start), resp.StatusCode())

	if resp.IsError() {
		return nil, &APIError{
			Status:     resp.StatusCode(),
			Body:       resp.String(),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	}

	return &out, nil
}

// GetMessageEvents fetches the event history for one message id. The id is
// passed as-is; Brevo expects the full form including angle brackets.
func (c *Client) GetMessageEvents(ctx context.Context, messageID string) ([]EventRecord, error) {
	var out eventReport

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("messageId", messageID).
		SetResult(&out).
		Get("/smtp/statistics/events")

	if err != nil {
		return nil, &APIError{Status: 0, Body: err.Error()}
	}

	if resp.IsError() {
		return nil, &APIError{
			Status:     resp.StatusCode(),
			Body:       resp.String(),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	}

	return out.Events, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
