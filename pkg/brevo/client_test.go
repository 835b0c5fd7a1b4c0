package brevo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campaignkit/dispatch-service/environments"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(environments.BrevoConfig{
		APIKey:  "xkeysib-test",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
}

func TestSendBatch_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/smtp/email" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "xkeysib-test" {
			t.Errorf("expected api-key header, got %q", r.Header.Get("api-key"))
		}

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.MessageVersions) != 2 {
			t.Errorf("expected 2 versions, got %d", len(req.MessageVersions))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"messageIds": []string{"<a@x>", "<b@x>"},
		})
	})

	resp, err := client.SendBatch(context.Background(), &SendRequest{
		Sender: Party{Email: "s@example.com"},
		MessageVersions: []MessageVersion{
			{To: []Party{{Email: "a@example.com"}}, Subject: "hi", HTMLContent: "x"},
			{To: []Party{{Email: "b@example.com"}}, Subject: "hi", HTMLContent: "y"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.MessageIDs) != 2 {
		t.Errorf("expected 2 ids, got %v", resp.MessageIDs)
	}
}

func TestSendBatch_ErrorCarriesStatusAndRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limit"}`))
	})

	_, err := client.SendBatch(context.Background(), &SendRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", apiErr.Status)
	}
	if apiErr.RetryAfter != 12*time.Second {
		t.Errorf("expected 12s hint, got %v", apiErr.RetryAfter)
	}
}

func TestGetMessageEvents_ParsesReport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("messageId"); got != "<a@x>" {
			t.Errorf("expected messageId query param, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]string{
				{"event": "delivered", "email": "a@example.com", "date": "2025-11-05 12:58:00"},
			},
		})
	})

	events, err := client.GetMessageEvents(context.Background(), "<a@x>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Event != "delivered" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2.5"); got != 2500*time.Millisecond {
		t.Errorf("expected 2.5s, got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("expected 0 for empty header, got %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("expected 0 for unparseable header, got %v", got)
	}
}
