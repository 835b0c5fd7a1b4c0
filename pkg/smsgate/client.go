package smsgate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// Client talks to the SMS gateway over its basic-auth REST API. Sends are
// sequential: the gateway has no batched endpoint, so each message is its own
// call and failures stay isolated per item.
type Client struct {
	httpClient *resty.Client
	batchCap   int
}

func NewClient(cfg environments.SMSGatewayConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetBasicAuth(cfg.Login, cfg.Password)

	return &Client{httpClient: client, batchCap: cfg.BatchCap}
}

type sendPayload struct {
	PhoneNumbers []string `json:"phoneNumbers"`
	TextMessage  struct {
		Text string `json:"text"`
	} `json:"textMessage"`
}

type sendResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type stateResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Recipients []struct {
		PhoneNumber string `json:"phoneNumber"`
		State       string `json:"state"`
	} `json:"recipients"`
	CreatedAt string `json:"createdAt"`
}

// SendBulk submits each message individually and reports the per-item outcome.
// A run larger than the batch cap is rejected before any network traffic.
func (c *Client) SendBulk(ctx context.Context, messages []domain.SMSVersion) ([]domain.SMSSendResult, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	if c.batchCap > 0 && len(messages) > c.batchCap {
		return nil, fmt.Errorf("batch of %d exceeds cap of %d", len(messages), c.batchCap)
	}

	results := make([]domain.SMSSendResult, 0, len(messages))

	for _, msg := range messages {
		res := domain.SMSSendResult{Recipient: msg.Recipient}

		id, err := c.sendOne(ctx, msg)
		if err != nil {
			logger.Errorf("SMS send to %s failed: %v", msg.Recipient, err)
			res.Error = err.Error()
		} else {
			res.MessageID = id
		}

		results = append(results, res)

		if ctx.Err() != nil {
			break
		}
	}

	return results, nil
}

func (c *Client) sendOne(ctx context.Context, msg domain.SMSVersion) (string, error) {
	payload := sendPayload{PhoneNumbers: []string{msg.Recipient}}
	payload.TextMessage.Text = msg.Text

	var out sendResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/message")

	if err != nil {
		return "", fmt.Errorf("gateway unreachable: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	if out.ID == "" {
		return "", fmt.Errorf("gateway accepted the message but returned no id")
	}

	return out.ID, nil
}

// GetState reports the normalized delivery state for one gateway message id.
func (c *Client) GetState(ctx context.Context, messageID string) (*domain.SMSStatus, error) {
	var out stateResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/message/%s", messageID))

	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	raw := out.State
	if len(out.Recipients) > 0 {
		raw = out.Recipients[0].State
	}

	return &domain.SMSStatus{
		MessageID: messageID,
		State:     normalizeState(raw),
		RawState:  raw,
		UpdatedAt: out.CreatedAt,
	}, nil
}

// normalizeState folds the gateway's state vocabulary into the fixed set the
// rest of the system understands. Unknown values map to SMSUnknown rather
// than erroring, so a gateway-side vocabulary change degrades gracefully.
func normalizeState(raw string) domain.SMSState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "enqueued":
		return domain.SMSQueued
	case "sent", "processed":
		return domain.SMSSent
	case "delivered":
		return domain.SMSDelivered
	case "failed", "error", "undelivered":
		return domain.SMSFailed
	default:
		return domain.SMSUnknown
	}
}
