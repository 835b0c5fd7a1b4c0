package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/campaignkit/dispatch-service/pkg/brevo"
)

// Status codes worth retrying vs. ones that will never succeed on a resend.
var retryableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}
var permanentStatuses = map[int]bool{400: true, 401: true, 403: true, 404: true}

// Brevo API keys start with "xkeysib-". Error bodies occasionally echo request
// headers back; redact anything key-shaped before it reaches logs or audit files.
var apiKeyPattern = regexp.MustCompile(`xkeysib-[A-Za-z0-9_-]+`)

// Classify inspects a transport error and reports whether it is worth retrying,
// plus a human-readable diagnostic. Unknown statuses and non-API errors are
// treated as retryable: an extra attempt is cheaper than a silently dropped send.
// Classify never panics and never returns an empty message for a non-nil error.
func Classify(err error) (retryable bool, message string) {
	if err == nil {
		return false, ""
	}

	var apiErr *brevo.APIError
	if !errors.As(err, &apiErr) {
		return true, scrubSecrets(err.Error())
	}

	detail := extractMessage(apiErr.Body)

	switch {
	case retryableStatuses[apiErr.Status]:
		return true, fmt.Sprintf("retryable error (HTTP %d): %s", apiErr.Status, detail)
	case permanentStatuses[apiErr.Status]:
		return false, fmt.Sprintf("permanent error (HTTP %d): %s", apiErr.Status, detail)
	case apiErr.Status == 0:
		return true, fmt.Sprintf("transport error: %s", detail)
	default:
		return true, fmt.Sprintf("unknown error (HTTP %d): %s", apiErr.Status, detail)
	}
}

// RetryAfterHint returns the provider-suggested wait for err, or 0 if none.
func RetryAfterHint(err error) time.Duration {
	var apiErr *brevo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// extractMessage pulls the "message" field out of a structured error body,
// falling back to the raw body when it is not JSON.
func extractMessage(body string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Message != "" {
		return scrubSecrets(parsed.Message)
	}
	return scrubSecrets(body)
}

func scrubSecrets(s string) string {
	return apiKeyPattern.ReplaceAllString(s, "xkeysib-***")
}
