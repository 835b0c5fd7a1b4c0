package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/campaignkit/dispatch-service/pkg/logger"
)

const bodySnippetLen = 200

// AuditLog appends a durable record for every permanently failed send attempt.
// Writing is best-effort: an audit failure is logged but never surfaces to the
// send path.
type AuditLog struct {
	path string
}

func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

func (l *AuditLog) RecordFailure(sender, recipient, subject, body, errMsg string) {
	snippet := body
	if len(snippet) > bodySnippetLen {
		snippet = snippet[:bodySnippetLen]
	}
	if snippet == "" {
		snippet = "N/A"
	}

	entry := fmt.Sprintf(
		"Timestamp: %s\nSender: %s\nRecipient: %s\nSubject: %s\nError: %s\nBody Snippet: %s...\n%s\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		sender, recipient, subject, errMsg, snippet,
		strings.Repeat("-", 50),
	)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		logger.Errorf("Failed to create audit log directory for %s: %v", l.path, err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Errorf("Failed to open audit log %s: %v", l.path, err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		logger.Errorf("Failed to write audit log %s: %v", l.path, err)
	}
}
